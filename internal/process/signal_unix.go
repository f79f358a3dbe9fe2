//go:build !windows

package process

import (
	"errors"
	"syscall"
)

const gracefulStopSupported = true

// requestStop sends SIGTERM to the process group led by pid.
func requestStop(pid int) error { return signalGroup(pid, syscall.SIGTERM) }

// forceKill sends SIGKILL to the process group led by pid.
func forceKill(pid int) error { return signalGroup(pid, syscall.SIGKILL) }

// signalGroup signals -pid, falling back to pid alone when the group is
// gone. A process that no longer exists is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
