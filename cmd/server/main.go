// rainfall-server is the reference backend for the rainfall dashboard: account
// registration and login, the rainfall record collection, server-side
// analytics and CSV export.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"rainfall-dashboard/internal/auth"
	"rainfall-dashboard/internal/config"
	"rainfall-dashboard/internal/httpapi"
	"rainfall-dashboard/internal/metrics"
	"rainfall-dashboard/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("rainfall-server", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flagSet.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "storage backend: sqlite or postgres")
	flagSet.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database file")
	flagSet.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres connection string")
	flagSet.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "lifetime of issued tokens")
	flagSet.BoolVar(&cfg.AllowAdminRegistration, "allow-admin-registration", cfg.AllowAdminRegistration, "let /register create admin accounts")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	tokens, err := auth.NewManager(auth.Config{Secret: cfg.JWTSecret, TTL: cfg.TokenTTL})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	api := httpapi.NewServer(store, tokens, httpapi.Options{
		AllowAdminRegistration: cfg.AllowAdminRegistration,
		Logger:                 logger,
		Metrics:                metrics.NewHTTP(registry),
		Gatherer:               registry,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: config.ReadHeader,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Shutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Server) (storage.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return storage.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return storage.OpenSQLite(cfg.DBPath)
	}
}
