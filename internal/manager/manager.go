package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/gamehost/internal/history"
	"github.com/loykin/gamehost/internal/logger"
	"github.com/loykin/gamehost/internal/metrics"
	"github.com/loykin/gamehost/internal/process"
)

var (
	ErrNotFound          = errors.New("process not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotTerminated     = errors.New("process has not terminated")
)

var allStatuses = []process.Status{
	process.StatusInitializing, process.StatusActive, process.StatusTerminating, process.StatusTerminated,
}

// LauncherFactory builds the launcher for one configuration.
type LauncherFactory func(cfg process.Configuration, logs logger.FileConfig) process.Launcher

// Options configures a Manager. Env is required.
type Options struct {
	Env                   process.EnvironmentProvider
	Logs                  logger.FileConfig
	InitializationTimeout time.Duration
	TerminateGrace        time.Duration
	Sink                  history.Sink
	Logger                *slog.Logger

	// NewLauncher and Terminator default to os/exec based implementations.
	NewLauncher LauncherFactory
	Terminator  process.Terminator
	Now         func() time.Time
}

// Info is a process snapshot plus OS-level details.
type Info struct {
	process.Snapshot
	PID       int        `json:"pid,omitempty"`
	Alive     bool       `json:"alive"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExitError string     `json:"exit_error,omitempty"`
}

// Manager owns the controllers of every game-server process on the host and
// drives their status: readiness, initialization timeouts, termination and
// exit. It does not decide how many processes run or restart them.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	c    *process.Controller
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitializationTimeout == 0 {
		opts.InitializationTimeout = process.DefaultInitializationTimeout
	}
	if opts.NewLauncher == nil {
		opts.NewLauncher = func(cfg process.Configuration, logs logger.FileConfig) process.Launcher {
			return process.NewExecLauncher(cfg, logs)
		}
	}
	if opts.Terminator == nil {
		opts.Terminator = process.KillTerminator{Grace: opts.TerminateGrace, Logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, log: opts.Logger, entries: make(map[string]*entry)}
}

// AuthToken returns the agent token of the environment provider, or "" when
// the provider carries none.
func (m *Manager) AuthToken() string {
	if t, ok := m.opts.Env.(interface{ AuthToken() string }); ok {
		return t.AuthToken()
	}
	return ""
}

// Launch creates a controller for cfg and starts its process. A launch
// failure leaves a Terminated entry and returns its info together with the
// launch error; the reason is ServerProcessInvalidPath when the executable
// could not be run and ServerProcessCrashed otherwise.
func (m *Manager) Launch(cfg process.Configuration) (Info, error) {
	if err := cfg.Validate(); err != nil {
		return Info{}, fmt.Errorf("invalid configuration: %w", err)
	}
	c := process.NewController(cfg, m.opts.NewLauncher(cfg, m.opts.Logs), m.opts.Terminator, m.opts.Env,
		process.WithInitializationTimeout(m.opts.InitializationTimeout),
		process.WithLogger(m.log),
		process.WithClock(m.opts.Now))
	e := &entry{c: c, done: make(chan struct{})}

	m.mu.Lock()
	m.entries[c.ID()] = e
	m.mu.Unlock()

	if _, err := c.Start(); err != nil {
		rec := c.Record()
		reason := process.ReasonServerProcessCrashed
		if process.IsBadExecutablePath(err) {
			reason = process.ReasonServerProcessInvalidPath
		}
		rec.SetTerminationReason(reason)
		m.transition(rec, process.StatusTerminated)
		e.setExitErr(err)
		close(e.done)
		m.emit(history.EventLaunchFailed, e)
		return m.info(e), err
	}

	m.emit(history.EventLaunched, e)
	m.refreshGauge()
	c.HandleProcessExit(func(h process.Handle, _ *process.Controller) { m.onExit(e, h) })
	// Terminate or Shutdown may have run while the process was starting and
	// found no handle to kill.
	if c.Record().Status() >= process.StatusTerminating {
		go c.Terminate()
	}
	return m.info(e), nil
}

// onExit finalises an entry once its OS process is gone.
func (m *Manager) onExit(e *entry, h process.Handle) {
	exitErr := h.ExitErr()
	rec := e.c.Record()

	reason := process.ReasonServerProcessCrashed
	if rec.Status() == process.StatusTerminating || exitErr == nil {
		reason = process.ReasonNormalTermination
	}
	rec.SetTerminationReason(reason)
	m.transition(rec, process.StatusTerminating)
	m.transition(rec, process.StatusTerminated)
	e.setExitErr(exitErr)
	metrics.IncExit(exitErr == nil)

	final, _ := rec.TerminationReason()
	m.log.Info("process exited", "process_id", rec.ID(), "pid", h.Pid(), "reason", final, "error", exitErr)
	m.emit(history.EventExited, e)
	close(e.done)
}

// Activate marks an Initializing process as ready.
func (m *Manager) Activate(id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	rec := e.c.Record()
	if !rec.CompareAndSetStatus(process.StatusInitializing, process.StatusActive) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status(), process.StatusActive)
	}
	m.recordTransition(process.StatusInitializing, process.StatusActive)
	m.emit(history.EventActivated, e)
	return nil
}

func (m *Manager) SetGameSession(id, sessionID string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.c.Record().SetGameSessionID(sessionID)
	return nil
}

// SetLogPaths replaces the log paths reported by the game server.
func (m *Manager) SetLogPaths(id string, paths []string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.c.SetLogPaths(paths)
	return nil
}

// Terminate records reason, moves the process to Terminating and kills it.
// The kill runs in the background; Terminated follows the observed exit.
// Terminating an already terminated process is a no-op.
func (m *Manager) Terminate(id string, reason process.TerminationReason) error {
	if !reason.Valid() {
		return fmt.Errorf("unknown termination reason %q", reason)
	}
	e, err := m.get(id)
	if err != nil {
		return err
	}
	rec := e.c.Record()
	if rec.Status() == process.StatusTerminated {
		return nil
	}
	rec.SetTerminationReason(reason)
	if m.transition(rec, process.StatusTerminating) {
		final, _ := rec.TerminationReason()
		metrics.IncTermination(string(final))
		m.emit(history.EventTerminating, e)
	}
	go e.c.Terminate()
	return nil
}

// Reconcile terminates processes that missed their initialization deadline.
func (m *Manager) Reconcile() {
	for _, e := range m.snapshotEntries() {
		if !e.c.HasTimedOutForInitialization() {
			continue
		}
		metrics.IncInitializationTimeout()
		m.log.Warn("process did not activate before its deadline", "process_id", e.c.ID(),
			"deadline", e.c.Record().InitializationDeadline())
		_ = m.Terminate(e.c.ID(), process.ReasonServerProcessInitializationTimeout)
	}
	m.refreshGauge()
}

// Run calls Reconcile every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Reconcile()
		}
	}
}

// Get returns the info of one process.
func (m *Manager) Get(id string) (Info, error) {
	e, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	return m.info(e), nil
}

// List returns every tracked process, oldest first.
func (m *Manager) List() []Info {
	entries := m.snapshotEntries()
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, m.info(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ProcessID < out[j].ProcessID
	})
	return out
}

// Wait blocks until the process has terminated or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Info, error) {
	e, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	select {
	case <-e.done:
		return m.info(e), nil
	case <-ctx.Done():
		return m.info(e), ctx.Err()
	}
}

// Forget drops a terminated entry.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.c.Record().Status() != process.StatusTerminated {
		return fmt.Errorf("%w: %s", ErrNotTerminated, id)
	}
	delete(m.entries, id)
	return nil
}

// PIDs maps the id of every live process to its OS pid.
func (m *Manager) PIDs() map[string]int32 {
	out := make(map[string]int32)
	for _, e := range m.snapshotEntries() {
		if h, ok := e.c.Handle(); ok && e.c.IsAlive() {
			out[e.c.ID()] = int32(h.Pid())
		}
	}
	return out
}

// Shutdown terminates every process with ComputeShuttingDown and waits for
// all of them to exit or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	entries := m.snapshotEntries()
	for _, e := range entries {
		_ = m.Terminate(e.c.ID(), process.ReasonComputeShuttingDown)
	}
	for _, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (m *Manager) snapshotEntries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

func (m *Manager) info(e *entry) Info {
	in := Info{Snapshot: e.c.Record().Snapshot()}
	if h, ok := e.c.Handle(); ok {
		in.PID = h.Pid()
		in.Alive = h.Alive()
		if t := h.StartedAt(); !t.IsZero() {
			in.StartedAt = &t
		}
	}
	if err := e.getExitErr(); err != nil {
		in.ExitError = err.Error()
	}
	return in
}

// transition moves rec forward to next. Statuses only advance; it reports
// whether this call changed the status.
func (m *Manager) transition(rec *process.Record, next process.Status) bool {
	for {
		cur := rec.Status()
		if cur >= next {
			return false
		}
		if rec.CompareAndSetStatus(cur, next) {
			m.recordTransition(cur, next)
			return true
		}
	}
}

func (m *Manager) recordTransition(from, to process.Status) {
	metrics.RecordStateTransition(from.String(), to.String())
	m.refreshGauge()
}

func (m *Manager) refreshGauge() {
	counts := make(map[string]int, len(allStatuses))
	for _, e := range m.snapshotEntries() {
		counts[e.c.Record().Status().String()]++
	}
	names := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		names[i] = s.String()
	}
	metrics.SetProcesses(counts, names)
}

func (m *Manager) emit(typ history.EventType, e *entry) {
	if m.opts.Sink == nil {
		return
	}
	pid := 0
	if h, ok := e.c.Handle(); ok {
		pid = h.Pid()
	}
	ev := history.Event{
		Type:       typ,
		OccurredAt: m.opts.Now().UTC(),
		Record:     history.NewRecord(e.c.Record().Snapshot(), pid, e.getExitErr()),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.opts.Sink.Send(ctx, ev); err != nil {
		m.log.Warn("failed to send history event", "process_id", e.c.ID(), "event", typ, "error", err)
	}
}

func (e *entry) setExitErr(err error) {
	e.mu.Lock()
	e.exitErr = err
	e.mu.Unlock()
}

func (e *entry) getExitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitErr
}
