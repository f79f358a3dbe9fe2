package gamehost

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/gamehost/internal/config"
	"github.com/loykin/gamehost/internal/env"
	"github.com/loykin/gamehost/internal/history"
	"github.com/loykin/gamehost/internal/history/factory"
	"github.com/loykin/gamehost/internal/logger"
	"github.com/loykin/gamehost/internal/manager"
	"github.com/loykin/gamehost/internal/metrics"
	"github.com/loykin/gamehost/internal/process"
	iapi "github.com/loykin/gamehost/internal/server"
	itls "github.com/loykin/gamehost/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Configuration = process.Configuration

type Status = process.Status

type TerminationReason = process.TerminationReason

type Info = manager.Info

type Record = process.Record

type Controller = process.Controller

type Handle = process.Handle

type Launcher = process.Launcher

type Terminator = process.Terminator

type EnvironmentProvider = process.EnvironmentProvider

type ExitFunc = process.ExitFunc

type EnvProvider = env.Provider

type Identity = env.Identity

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

type LogConfig = logger.Config

type SamplerConfig = metrics.SamplerConfig

type ResourceSampler = metrics.ResourceSampler

const (
	StatusInitializing = process.StatusInitializing
	StatusActive       = process.StatusActive
	StatusTerminating  = process.StatusTerminating
	StatusTerminated   = process.StatusTerminated
)

// AuthTokenVar names the variable carrying the agent token.
const AuthTokenVar = env.AuthTokenVar

var (
	ErrNotFound          = manager.ErrNotFound
	ErrInvalidTransition = manager.ErrInvalidTransition
	ErrNotTerminated     = manager.ErrNotTerminated
	ErrBadExecutablePath = process.ErrBadExecutablePath
)

// Core constructors for driving a single process without the Manager.

func NewRecord(c Configuration, initTimeout time.Duration) *Record {
	return process.NewRecord(c, initTimeout)
}

func NewController(c Configuration, l Launcher, t Terminator, e EnvironmentProvider, initTimeout time.Duration) *Controller {
	return process.NewController(c, l, t, e, process.WithInitializationTimeout(initTimeout))
}

// NewExecLauncher launches c with os/exec; output is captured per logs.
func NewExecLauncher(c Configuration, logs logger.FileConfig) Launcher {
	return process.NewExecLauncher(c, logs)
}

// NewKillTerminator stops processes started by NewExecLauncher, allowing
// grace for a clean exit before killing.
func NewKillTerminator(grace time.Duration) Terminator {
	return process.KillTerminator{Grace: grace}
}

func NewEnvProvider(id Identity) *EnvProvider { return env.New(id) }

// Options configures a Manager built with New.
type Options struct {
	Identity              Identity
	Env                   []string // KEY=VALUE pairs shared by every process
	Logs                  logger.FileConfig
	InitializationTimeout time.Duration
	TerminateGrace        time.Duration
	History               HistorySink
	Logger                *slog.Logger
}

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct {
	inner *manager.Manager
	env   *env.Provider
}

func New(o Options) *Manager {
	ep := env.New(o.Identity)
	ep.SetAll(o.Env)
	return &Manager{
		env: ep,
		inner: manager.NewManager(manager.Options{
			Env:                   ep,
			Logs:                  o.Logs,
			InitializationTimeout: o.InitializationTimeout,
			TerminateGrace:        o.TerminateGrace,
			Sink:                  o.History,
			Logger:                o.Logger,
		}),
	}
}

// NewFromConfig builds a Manager from a loaded agent configuration.
func NewFromConfig(c *Config, sink HistorySink, log *slog.Logger) *Manager {
	return New(Options{
		Identity:              Identity{HostID: c.HostID, AuthToken: c.AuthToken, AgentURL: c.AgentURL},
		Env:                   c.Env,
		Logs:                  c.Log.File,
		InitializationTimeout: c.InitializationTimeout,
		TerminateGrace:        c.TerminateGrace,
		History:               sink,
		Logger:                log,
	})
}

func (m *Manager) SetEnv(kvs []string)                  { m.env.SetAll(kvs) }
func (m *Manager) Launch(c Configuration) (Info, error) { return m.inner.Launch(c) }
func (m *Manager) Activate(id string) error             { return m.inner.Activate(id) }
func (m *Manager) Get(id string) (Info, error)          { return m.inner.Get(id) }
func (m *Manager) List() []Info                         { return m.inner.List() }
func (m *Manager) Forget(id string) error               { return m.inner.Forget(id) }
func (m *Manager) Reconcile()                           { m.inner.Reconcile() }
func (m *Manager) SetGameSession(id, sessionID string) error {
	return m.inner.SetGameSession(id, sessionID)
}
func (m *Manager) SetLogPaths(id string, paths []string) error {
	return m.inner.SetLogPaths(id, paths)
}
func (m *Manager) Terminate(id string, reason TerminationReason) error {
	return m.inner.Terminate(id, reason)
}
func (m *Manager) Wait(ctx context.Context, id string) (Info, error) { return m.inner.Wait(ctx, id) }
func (m *Manager) Run(ctx context.Context, interval time.Duration)   { m.inner.Run(ctx, interval) }
func (m *Manager) Shutdown(ctx context.Context) error                { return m.inner.Shutdown(ctx) }

// LaunchAll launches ConcurrentExecutions copies of every configuration and
// returns the infos of the successful launches with the joined launch errors.
func (m *Manager) LaunchAll(cfgs []Configuration) ([]Info, error) {
	var (
		out  []Info
		errs []error
	)
	for _, c := range cfgs {
		for i := 0; i < c.Concurrency(); i++ {
			in, err := m.inner.Launch(c)
			if err != nil {
				errs = append(errs, fmt.Errorf("launch %s: %w", c.LaunchPath, err))
				continue
			}
			out = append(out, in)
		}
	}
	return out, errors.Join(errs...)
}

// StartResourceSampler samples the live processes of m until ctx is done.
func (m *Manager) StartResourceSampler(ctx context.Context, s *ResourceSampler) {
	s.Start(ctx, m.inner.PIDs)
}

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

func DefaultConfig() *Config { return cfg.Default() }

func NewResourceSampler(c SamplerConfig) *ResourceSampler { return metrics.NewResourceSampler(c) }

// NewLogger builds the agent logger.
func NewLogger(c LogConfig) *slog.Logger { return logger.New(c) }

// NewHistorySinkFromDSN opens a sqlite, postgres or clickhouse history sink.
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// CloseHistorySink closes s when it holds resources.
func CloseHistorySink(s HistorySink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewRouter returns the HTTP API of m mounted at basePath. A non-nil
// sampler enables the resources endpoint. Requests must carry the manager's
// identity token as a bearer credential when one is set.
func NewRouter(m *Manager, basePath string, sampler *ResourceSampler) http.Handler {
	r := iapi.NewRouter(m.inner, basePath)
	if sampler != nil {
		r.SetSampler(sampler)
	}
	return r.Handler()
}

// ServerTLS returns the API server TLS configuration, or nil when the
// config does not enable TLS.
func ServerTLS(c *Config) (*tls.Config, error) { return itls.Setup(c.Server.TLS) }

// NewHTTPServer starts an HTTP server exposing the internal API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the background; the returned server can be
// shut down by the caller.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
