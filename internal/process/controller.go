package process

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/gamehost/internal/metrics"
)

// Controller drives one Record through its lifecycle and owns the handle of
// the single OS process launched for it.
//
// Lock order: startMu, then mu. startMu serializes launches so at most one
// handle is ever stored; mu guards the handle for readers.
//
// Controller never changes the record's status or termination reason.
type Controller struct {
	record     *Record
	launcher   Launcher
	terminator Terminator
	env        EnvironmentProvider
	log        *slog.Logger
	now        func() time.Time

	startMu sync.Mutex
	mu      sync.RWMutex
	handle  Handle
}

type options struct {
	initTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*options)

// WithInitializationTimeout overrides DefaultInitializationTimeout. A negative
// duration places the deadline in the past.
func WithInitializationTimeout(d time.Duration) Option {
	return func(o *options) { o.initTimeout = d }
}

// WithLogger sets the base logger; a process_id attribute is added to it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for deadline bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewController creates a controller and its Initializing record. Nothing is
// launched until Start.
func NewController(cfg Configuration, launcher Launcher, terminator Terminator, env EnvironmentProvider, opts ...Option) *Controller {
	o := options{initTimeout: DefaultInitializationTimeout, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	rec := newRecord(cfg, o.initTimeout, o.now())
	return &Controller{
		record:     rec,
		launcher:   launcher,
		terminator: terminator,
		env:        env,
		log:        o.logger.With("process_id", rec.id),
		now:        o.now,
	}
}

func (c *Controller) ID() string { return c.record.id }

func (c *Controller) Record() *Record { return c.record }

// Handle returns the launched process handle, if any.
func (c *Controller) Handle() (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, c.handle != nil
}

// Start launches the OS process and returns the process id. Once a launch
// has succeeded further calls return the same id without side effects.
// Launch errors are returned unchanged; the record stays Initializing and no
// handle is stored.
func (c *Controller) Start() (string, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	id := c.record.id
	if _, ok := c.Handle(); ok {
		c.log.Warn("attempted to start a process that has already been launched",
			"configuration", c.record.config.String())
		return id, nil
	}

	vars := c.env.ProcessEnvironment(id)
	c.log.Info("starting process",
		"configuration", c.record.config.String(),
		"env", c.env.PrintableEnvironment(id))

	h, err := c.launcher.Build(vars)
	if err != nil {
		metrics.IncStartFailure(startFailureLabel(err))
		c.log.Error("failed to launch process", "launch_path", c.record.config.LaunchPath, "error", err)
		return "", err
	}
	if h == nil {
		metrics.IncStartFailure("no_handle")
		return "", errors.New("launcher returned no process handle")
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	metrics.IncStart()
	c.log.Info("process launched", "pid", h.Pid())
	return id, nil
}

// Terminate forcibly kills the OS process. Without a launched process it
// only logs a warning.
func (c *Controller) Terminate() {
	h, ok := c.Handle()
	if !ok {
		c.log.Warn("attempted to terminate a process that hasn't been launched")
		return
	}
	c.log.Info("terminating process", "pid", h.Pid())
	c.terminator.Destroy(h)
}

// IsAlive reports whether the OS process is running; false if never launched.
func (c *Controller) IsAlive() bool {
	h, ok := c.Handle()
	return ok && h.Alive()
}

// HasTimedOutForInitialization reports whether the record is still
// Initializing after its initialization deadline.
func (c *Controller) HasTimedOutForInitialization() bool {
	return c.record.Status() == StatusInitializing && c.now().After(c.record.deadline)
}

// HandleProcessExit arranges for fn to run once, on its own goroutine, after
// the OS process exits. Registering after the exit still runs fn. Without a
// launched process it only logs a warning.
func (c *Controller) HandleProcessExit(fn ExitFunc) {
	if fn == nil {
		return
	}
	h, ok := c.Handle()
	if !ok {
		c.log.Warn("attempted to handle process exit for a process that hasn't been launched")
		return
	}
	go func() {
		<-h.Exited()
		fn(h, c)
	}()
}

// SetLogPaths replaces the record's log paths; nil yields an empty set.
func (c *Controller) SetLogPaths(paths []string) { c.record.SetLogPaths(paths) }

func startFailureLabel(err error) string {
	if IsBadExecutablePath(err) {
		return "bad_executable_path"
	}
	return "other"
}
