package process

import "time"

// Handle is a launched OS process.
// Implementations must be safe for concurrent use.
type Handle interface {
	// Pid is the OS-assigned process id.
	Pid() int
	// Alive reports whether the OS process is still running.
	Alive() bool
	// Exited is closed exactly once, when the OS process has exited for any
	// reason. Receiving from it after exit returns immediately.
	Exited() <-chan struct{}
	// ExitErr is the wait result; only meaningful once Exited is closed.
	ExitErr() error
	// StartedAt is the OS-reported start time of the process.
	StartedAt() time.Time
}

// Launcher starts the OS process for one Configuration.
type Launcher interface {
	// Build launches the process with env added to its environment.
	// It returns an error matching ErrBadExecutablePath when the configured
	// executable cannot be resolved or executed.
	Build(env map[string]string) (Handle, error)
}

// Terminator forcibly kills a running OS process. Best-effort.
type Terminator interface {
	Destroy(h Handle)
}

// EnvironmentProvider computes the variables injected into a process.
type EnvironmentProvider interface {
	ProcessEnvironment(processID string) map[string]string
	// PrintableEnvironment is a log-safe rendering with secrets masked.
	PrintableEnvironment(processID string) string
}

// ExitFunc is invoked once when a controller's OS process exits.
type ExitFunc func(h Handle, c *Controller)
