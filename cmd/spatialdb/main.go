package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpapi "spatiallsm/internal/http"
	"spatiallsm/pkg/metrics"
	"spatiallsm/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "spatialdb: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}
	initLogger(&cfg)

	prom := metrics.NewPrometheus("spatiallsm")
	db, err := store.Open(cfg.DB, prom)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	server := httpapi.NewServer(db, cfg.Server)
	server.SetMetrics(prom)
	if err := server.Start(); err != nil {
		_ = db.Close()
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if err := server.Stop(); err != nil {
		slog.Error("failed to stop HTTP server", "error", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	slog.Info("spatialdb stopped")
	return nil
}
