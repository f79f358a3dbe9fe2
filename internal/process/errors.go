package process

import (
	"errors"
	"fmt"
)

// ErrBadExecutablePath is returned by Launcher.Build (and therefore by
// Controller.Start) when the configured executable cannot be resolved or
// executed.
var ErrBadExecutablePath = errors.New("bad executable path")

func errBadExecutablePath(path string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrBadExecutablePath, path)
	}
	return fmt.Errorf("%w: %s: %w", ErrBadExecutablePath, path, cause)
}

// IsBadExecutablePath reports whether err (or any error it wraps) is ErrBadExecutablePath.
func IsBadExecutablePath(err error) bool { return errors.Is(err, ErrBadExecutablePath) }
