package process

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeHandle struct {
	pid       int
	exited    chan struct{}
	closeOnce sync.Once
	exitErr   error
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, exited: make(chan struct{})}
}

func (h *fakeHandle) Pid() int                { return h.pid }
func (h *fakeHandle) Exited() <-chan struct{} { return h.exited }
func (h *fakeHandle) ExitErr() error          { return h.exitErr }
func (h *fakeHandle) StartedAt() time.Time    { return time.Time{} }

func (h *fakeHandle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

func (h *fakeHandle) exit(err error) {
	h.closeOnce.Do(func() {
		h.exitErr = err
		close(h.exited)
	})
}

type fakeLauncher struct {
	mu     sync.Mutex
	calls  int
	err    error
	handle *fakeHandle
	env    map[string]string
	delay  time.Duration
}

func (l *fakeLauncher) Build(env map[string]string) (Handle, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.env = env
	if l.err != nil {
		return nil, l.err
	}
	if l.handle == nil {
		l.handle = newFakeHandle(4242)
	}
	return l.handle, nil
}

func (l *fakeLauncher) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeTerminator struct {
	destroyed atomic.Int32
	last      atomic.Value
}

func (t *fakeTerminator) Destroy(h Handle) {
	t.destroyed.Add(1)
	t.last.Store(h)
}

type fakeEnv struct {
	secret string
}

func (e fakeEnv) ProcessEnvironment(id string) map[string]string {
	return map[string]string{EnvProcessID: id, "GAMEHOST_AUTH_TOKEN": e.secret}
}

func (e fakeEnv) PrintableEnvironment(id string) string {
	return EnvProcessID + "=" + id + ", GAMEHOST_AUTH_TOKEN=****"
}

var errLaunch = errors.New("launch exploded")
