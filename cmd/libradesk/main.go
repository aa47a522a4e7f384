// cmd/libradesk/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"libradesk/internal/audit"
	"libradesk/internal/backend"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/config"
	"libradesk/internal/membership"
	"libradesk/internal/store"
	"libradesk/internal/telemetry"
	"libradesk/internal/views"
	"libradesk/internal/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("LIBRADESK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "libradesk: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	b, closeBackend, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	st := store.New(store.WithLogger(logger))
	stopSync, err := st.Sync(ctx, b)
	if err != nil {
		return fmt.Errorf("sync store: %w", err)
	}
	defer stopSync()

	projector := views.NewProjector(st)
	defer projector.Close()

	policy := circulation.Policy{GraceDays: cfg.Loans.GraceDays, FeePerDay: cfg.Loans.FeePerDay}
	svc := web.Services{
		Catalog:    catalog.NewService(b, catalog.WithLogger(logger)),
		Membership: membership.NewService(b, st, membership.WithLogger(logger)),
		Circulation: circulation.NewService(b,
			circulation.WithLogger(logger),
			circulation.WithPolicy(policy),
			circulation.WithMeter(otel.Meter("libradesk/circulation")),
		),
		Store:     st,
		Projector: projector,
		Auditor:   audit.NewAuditor(st, audit.WithLogger(logger)),
	}
	if cfg.Audit.Interval > 0 {
		go svc.Auditor.Run(ctx, cfg.Audit.Interval)
	}

	server := web.NewServer(svc,
		web.WithLogger(logger),
		web.WithJWTSecret(cfg.Auth.JWTSecret),
		web.WithRateLimit(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting libradesk", "addr", cfg.HTTP.Addr, "backend", cfg.Backend.Kind, "auth", cfg.Auth.JWTSecret != "")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(cfg config.Log) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}

func openBackend(ctx context.Context, cfg config.Backend, logger *slog.Logger) (backend.Backend, func(), error) {
	var (
		b       backend.Backend
		closeFn = func() {}
	)
	switch cfg.Kind {
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		pg, err := backend.OpenPostgres(connectCtx, cfg.DatabaseURL,
			backend.WithSchema(cfg.Schema),
			backend.WithPostgresLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		b = pg
		closeFn = func() {
			if err := pg.Close(); err != nil {
				logger.Warn("failed to close postgres", "error", err)
			}
		}
	default:
		logger.Warn("using the in-memory backend; data is lost on exit")
		b = backend.NewMemory()
	}

	if cfg.BreakerFailures > 0 {
		b = backend.NewBreaker(b, uint32(cfg.BreakerFailures), cfg.BreakerTimeout, logger)
	}
	return b, closeFn, nil
}
