// backend/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gewnthar/covid19/backend/config"
	"github.com/gewnthar/covid19/backend/database"
	"github.com/gewnthar/covid19/backend/handlers"
	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/scraper"
	"github.com/gewnthar/covid19/backend/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("Starting COVID-19 dataset backend...")

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// configPath honours COVID_CONFIG, then looks in the usual locations.
func configPath() string {
	if p := os.Getenv("COVID_CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"backend/config/config.yaml", "config/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return err
	}
	slog.Info("Configuration loaded",
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"cache_ttl", cfg.Cache.TTL,
		"fetch_timeout", cfg.Fetch.Timeout)

	recorder := metrics.NewRecorder()
	fetcher := scraper.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, recorder)
	service := services.NewDatasetService(fetcher, cfg.Sources, recorder)

	var store services.SnapshotStore = services.NewMemoryStore()
	if cfg.Cache.Backend == config.BackendMySQL {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		mysqlStore := database.NewMySQLStore(db)
		if err := mysqlStore.EnsureSchema(ctx); err != nil {
			return err
		}
		store = mysqlStore
	}
	cache := services.NewResultCache(service, store, cfg.Cache.TTL, time.Now, recorder)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.NewDatasetHandler(cache), handlers.NewAdminHandler(cache), recorder.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", "http://localhost"+server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
