package process

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, l *fakeLauncher, opts ...Option) (*Controller, *fakeTerminator) {
	t.Helper()
	term := &fakeTerminator{}
	c := NewController(Configuration{LaunchPath: "/srv/game", Parameters: "-port 7777"}, l, term, fakeEnv{secret: "s3cr3t"}, opts...)
	return c, term
}

func TestStartLaunchesOnceAndReturnsID(t *testing.T) {
	l := &fakeLauncher{}
	c, _ := newTestController(t, l)

	id, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, c.ID(), id)
	assert.Equal(t, 1, l.Calls())
	assert.Equal(t, id, l.env[EnvProcessID])

	h, ok := c.Handle()
	require.True(t, ok)
	assert.Equal(t, 4242, h.Pid())

	// second start is a no-op returning the same id
	id2, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, 1, l.Calls())
	assert.Equal(t, StatusInitializing, c.Record().Status())
}

func TestStartConcurrentCallersLaunchOnce(t *testing.T) {
	l := &fakeLauncher{delay: 10 * time.Millisecond}
	c, _ := newTestController(t, l)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.Start()
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, l.Calls())
	for _, id := range ids {
		assert.Equal(t, c.ID(), id)
	}
}

func TestStartFailureLeavesNoHandle(t *testing.T) {
	badPath := errBadExecutablePath("/nope", fmt.Errorf("stat: %w", errLaunch))
	l := &fakeLauncher{err: badPath}
	c, term := newTestController(t, l)

	id, err := c.Start()
	require.Error(t, err)
	assert.Empty(t, id)
	assert.ErrorIs(t, err, ErrBadExecutablePath)
	assert.ErrorIs(t, err, errLaunch)
	assert.True(t, IsBadExecutablePath(err))

	_, ok := c.Handle()
	assert.False(t, ok)
	assert.False(t, c.IsAlive())
	assert.Equal(t, StatusInitializing, c.Record().Status())

	// no handle: terminate and exit registration are warnings only
	c.Terminate()
	assert.Zero(t, term.destroyed.Load())
	var called atomic.Bool
	c.HandleProcessExit(func(Handle, *Controller) { called.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, called.Load())

	// a retry after failure launches again
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
	id, err = c.Start()
	require.NoError(t, err)
	assert.Equal(t, c.ID(), id)
	assert.Equal(t, 2, l.Calls())
}

func TestNeverStartedControllerOnlyWarns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	l := &fakeLauncher{}
	c, term := newTestController(t, l, WithLogger(log))

	c.Terminate()
	var called atomic.Bool
	c.HandleProcessExit(func(Handle, *Controller) { called.Store(true) })
	time.Sleep(10 * time.Millisecond)

	assert.Zero(t, l.Calls())
	assert.Zero(t, term.destroyed.Load())
	assert.False(t, called.Load())
	assert.False(t, c.IsAlive())
	assert.Equal(t, StatusInitializing, c.Record().Status())
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "attempted to terminate a process that hasn't been launched")
	assert.Contains(t, out, "attempted to handle process exit for a process that hasn't been launched")
}

func TestStartDoesNotLogSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, _ := newTestController(t, &fakeLauncher{}, WithLogger(log))

	_, err := c.Start()
	require.NoError(t, err)
	out := buf.String()
	assert.NotContains(t, out, "s3cr3t")
	assert.Contains(t, out, "****")
	assert.Contains(t, out, "process_id="+c.ID())
	assert.Contains(t, out, "LaunchPath=/srv/game")
}

func TestTerminateDestroysHandleWithoutTouchingStatus(t *testing.T) {
	c, term := newTestController(t, &fakeLauncher{})
	_, err := c.Start()
	require.NoError(t, err)
	c.Record().SetStatus(StatusActive)

	c.Terminate()
	assert.EqualValues(t, 1, term.destroyed.Load())
	h, _ := c.Handle()
	assert.Equal(t, h, term.last.Load())
	assert.Equal(t, StatusActive, c.Record().Status())
	_, ok := c.Record().TerminationReason()
	assert.False(t, ok)
}

func TestIsAliveFollowsHandle(t *testing.T) {
	l := &fakeLauncher{}
	c, _ := newTestController(t, l)
	assert.False(t, c.IsAlive())

	_, err := c.Start()
	require.NoError(t, err)
	assert.True(t, c.IsAlive())

	l.handle.exit(nil)
	assert.False(t, c.IsAlive())
}

func TestHasTimedOutForInitialization(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(now.UnixNano())
	c, _ := newTestController(t, &fakeLauncher{},
		WithInitializationTimeout(time.Minute),
		WithClock(func() time.Time { return time.Unix(0, clock.Load()).UTC() }))

	assert.Equal(t, now.Add(time.Minute), c.Record().InitializationDeadline())
	assert.False(t, c.HasTimedOutForInitialization())

	// exactly at the deadline is not yet timed out
	clock.Store(now.Add(time.Minute).UnixNano())
	assert.False(t, c.HasTimedOutForInitialization())

	clock.Store(now.Add(time.Minute + time.Nanosecond).UnixNano())
	assert.True(t, c.HasTimedOutForInitialization())

	// only Initializing records time out
	c.Record().SetStatus(StatusActive)
	assert.False(t, c.HasTimedOutForInitialization())
	c.Record().SetStatus(StatusInitializing)
	assert.True(t, c.HasTimedOutForInitialization())
}

func TestNegativeInitializationTimeoutIsAlreadyExpired(t *testing.T) {
	c, _ := newTestController(t, &fakeLauncher{}, WithInitializationTimeout(-time.Second))
	assert.True(t, c.HasTimedOutForInitialization())
}

func TestHandleProcessExitRunsAfterExit(t *testing.T) {
	l := &fakeLauncher{}
	c, _ := newTestController(t, l)
	_, err := c.Start()
	require.NoError(t, err)

	done := make(chan *Controller, 1)
	var calls atomic.Int32
	c.HandleProcessExit(func(h Handle, got *Controller) {
		calls.Add(1)
		assert.Equal(t, 4242, h.Pid())
		done <- got
	})

	select {
	case <-done:
		t.Fatal("callback ran before exit")
	case <-time.After(20 * time.Millisecond):
	}

	l.handle.exit(fmt.Errorf("exit status 1"))
	select {
	case got := <-done:
		assert.Same(t, c, got)
	case <-time.After(time.Second):
		t.Fatal("exit callback not invoked")
	}
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestHandleProcessExitRegisteredAfterExit(t *testing.T) {
	l := &fakeLauncher{}
	c, _ := newTestController(t, l)
	_, err := c.Start()
	require.NoError(t, err)
	l.handle.exit(nil)

	done := make(chan struct{})
	c.HandleProcessExit(func(Handle, *Controller) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late registration should still fire")
	}
}

func TestHandleProcessExitNilCallback(t *testing.T) {
	c, _ := newTestController(t, &fakeLauncher{})
	_, err := c.Start()
	require.NoError(t, err)
	c.HandleProcessExit(nil)
}

func TestControllerSetLogPaths(t *testing.T) {
	c, _ := newTestController(t, &fakeLauncher{})
	c.SetLogPaths([]string{"/logs/b", "/logs/a"})
	assert.Equal(t, []string{"/logs/a", "/logs/b"}, c.Record().LogPaths())
	c.SetLogPaths(nil)
	assert.Empty(t, c.Record().LogPaths())
}
