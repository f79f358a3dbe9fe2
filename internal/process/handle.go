package process

import (
	"io"
	"os/exec"
	"sync"
	"time"
)

// cmdHandle is the Handle for a process started through os/exec. A single
// goroutine calls cmd.Wait; its result is published by closing exited.
type cmdHandle struct {
	cmd     *exec.Cmd
	pid     int
	closers []io.Closer

	exited chan struct{}

	startOnce sync.Once
	startedAt time.Time
	launched  time.Time

	mu      sync.Mutex
	exitErr error
}

// newCmdHandle wraps an already started cmd and begins waiting on it.
// closers are closed after the process exits (log writers).
func newCmdHandle(cmd *exec.Cmd, closers ...io.Closer) *cmdHandle {
	h := &cmdHandle{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		closers:  closers,
		exited:   make(chan struct{}),
		launched: time.Now(),
	}
	go h.wait()
	return h
}

func (h *cmdHandle) wait() {
	err := h.cmd.Wait()
	for _, c := range h.closers {
		_ = c.Close()
	}
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.exited)
}

func (h *cmdHandle) Pid() int { return h.pid }

func (h *cmdHandle) Exited() <-chan struct{} { return h.exited }

func (h *cmdHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Alive is false once the wait goroutine has reaped the process. Before
// that, the pid is probed so a child that died but is not yet reaped is not
// reported as running.
func (h *cmdHandle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
	}
	return pidAlive(h.pid)
}

// StartedAt resolves the OS start time on first use, falling back to the
// launch wall-clock time when the platform cannot report it.
func (h *cmdHandle) StartedAt() time.Time {
	h.startOnce.Do(func() {
		if secs := procStartUnix(h.pid); secs > 0 {
			h.startedAt = time.Unix(secs, 0)
			return
		}
		h.startedAt = h.launched
	})
	return h.startedAt
}
