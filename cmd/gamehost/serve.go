package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gamehost"
)

// shutdownSlack is added to terminate_grace when waiting for processes to
// exit on shutdown.
const shutdownSlack = 5 * time.Second

func createServeCommand(global *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the gamehost agent",
		Long: `Start the agent: launch the configured processes, enforce initialization
deadlines and serve the HTTP API until interrupted. On SIGINT or SIGTERM
every process is terminated with COMPUTE_SHUTTING_DOWN.

Examples:
  gamehost serve                     # Defaults, no processes
  gamehost serve gamehost.toml       # Start with a config file
  gamehost serve --pidfile=/run/gamehost.pid gamehost.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, global, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the agent PID to this file")
	return cmd
}

func loadServeConfig(global *GlobalFlags, args []string) (*gamehost.Config, error) {
	path := global.ConfigPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return gamehost.DefaultConfig(), nil
	}
	cfg, err := gamehost.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// runServe runs the agent until ctx is done.
func runServe(ctx context.Context, global *GlobalFlags, flags *ServeFlags, args []string) error {
	cfg, err := loadServeConfig(global, args)
	if err != nil {
		return err
	}

	log := gamehost.NewLogger(cfg.Log)
	slog.SetDefault(log)

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pidfile: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	if cfg.Metrics.Enabled {
		if err := gamehost.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		msrv := gamehost.ServeMetrics(cfg.Metrics.Listen)
		defer func() { _ = msrv.Close() }()
		log.Info("metrics enabled", "listen", cfg.Metrics.Listen)
	}

	var sink gamehost.HistorySink
	if cfg.History.DSN != "" {
		sink, err = gamehost.NewHistorySinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer func() { _ = gamehost.CloseHistorySink(sink) }()
	}

	mgr := gamehost.NewFromConfig(cfg, sink, log)

	sampler := gamehost.NewResourceSampler(cfg.Metrics.Sampler())
	mgr.StartResourceSampler(ctx, sampler)
	defer sampler.Stop()

	tlsConfig, err := gamehost.ServerTLS(cfg)
	if err != nil {
		return fmt.Errorf("server TLS: %w", err)
	}
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	srv := &http.Server{
		Handler:           gamehost.NewRouter(mgr, cfg.Server.BasePath, sampler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	log.Info("agent listening", "addr", ln.Addr().String(), "base_path", cfg.Server.BasePath, "tls", tlsConfig != nil)

	infos, err := mgr.LaunchAll(cfg.Processes)
	if err != nil {
		log.Error("some configured processes failed to launch", "error", err)
	}
	log.Info("configured processes launched", "count", len(infos))

	go mgr.Run(ctx, cfg.PollInterval)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
		}
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.TerminateGrace+shutdownSlack)
	defer cancel()
	_ = srv.Shutdown(sctx)
	if err := mgr.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
