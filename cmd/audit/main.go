// cmd/audit/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"libradesk/internal/audit"
	"libradesk/internal/backend"
	"libradesk/internal/clients"
	"libradesk/internal/config"
	"libradesk/internal/store"
)

// fixed serves one snapshot to the auditor.
type fixed store.Snapshot

func (f fixed) Snapshot() store.Snapshot { return store.Snapshot(f) }

func main() {
	server := flag.String("server", "", "audit a running server at this URL instead of reading the backend")
	token := flag.String("token", os.Getenv("LIBRADESK_TOKEN"), "bearer token for -server")
	configPath := flag.String("config", os.Getenv("LIBRADESK_CONFIG"), "path to a YAML config file")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after this long")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		snap store.Snapshot
		err  error
	)
	if *server != "" {
		snap, err = clients.New(*server, clients.WithToken(*token)).Snapshot(ctx)
	} else {
		snap, err = loadSnapshot(ctx, *configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		os.Exit(2)
	}

	report := audit.NewAuditor(fixed(snap)).Audit(ctx)
	report.Print(os.Stdout)
	if !report.Healthy() {
		os.Exit(1)
	}
}

func loadSnapshot(ctx context.Context, configPath string) (store.Snapshot, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return store.Snapshot{}, err
	}
	if cfg.Backend.Kind != config.BackendPostgres {
		return store.Snapshot{}, fmt.Errorf("the %s backend has nothing to audit; use -server", cfg.Backend.Kind)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	pg, err := backend.OpenPostgres(ctx, cfg.Backend.DatabaseURL,
		backend.WithSchema(cfg.Backend.Schema),
		backend.WithPostgresLogger(logger),
	)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("open postgres: %w", err)
	}
	defer pg.Close()

	st := store.New(store.WithLogger(logger))
	stop, err := st.Sync(ctx, pg)
	if err != nil {
		return store.Snapshot{}, err
	}
	defer stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !st.Synced() {
		select {
		case <-ctx.Done():
			return store.Snapshot{}, fmt.Errorf("waiting for initial load: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return st.Snapshot(), nil
}
