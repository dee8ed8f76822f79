package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/bci/internal/adapters/http/api"
	service "github.com/okian/bci/internal/app"
	"github.com/okian/bci/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the selection loop and the HTTP API",
		Long: `Start acquisition, run selection rounds over the configured menu and serve
/healthz, /stats, /history and the /ws event stream. The command returns when
a finish item is chosen or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	log := logger.Get()

	hub := api.NewHub(api.WithHubLogger(log.Named("hub")))
	svc, err := service.New(cfg, service.WithLogger(log), service.WithPublishers(hub))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, hub, cfg.MaxHistoryLimit).Register(ctx, mux)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	var result error
	loopDone := false
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutdown signal received")
	case result = <-runErr:
		loopDone = true
	case result = <-serveErr:
		log.Error(ctx, "HTTP server failed", logger.Error(result))
	}
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	// A round in progress finishes its current wait before it sees the stop.
	if !loopDone {
		select {
		case err := <-runErr:
			if result == nil {
				result = err
			}
		case <-shutdownCtx.Done():
			log.Warn(shutdownCtx, "selection loop did not stop in time")
		}
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service stop failed", logger.Error(err))
		result = errors.Join(result, err)
	}
	if err := hub.Close(); err != nil {
		log.Error(shutdownCtx, "hub close failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return result
}
