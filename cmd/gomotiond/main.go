// Package main is the entry point for the motion daemon.
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

	"github.com/prometheus/client_golang/prometheus"

	"gomotion/config"
	"gomotion/internal/cache"
	"gomotion/internal/logging"
	"gomotion/internal/motion"
	"gomotion/internal/observability"
	"gomotion/internal/providers"
	"gomotion/internal/providers/anthropic"
	"gomotion/internal/providers/ollama"
	"gomotion/internal/providers/openai"
	"gomotion/internal/server"
	"gomotion/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	configPath := flag.String("config", "", "Path to config file (default: config.yaml)")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logging.Setup(logging.ParseLevel(cfg.Logging.Level))

	slog.Info("starting gomotion",
		"version", version.Version,
		"commit", version.Commit,
	)

	if cfg.ActiveProvider == "" {
		slog.Error("no active provider configured; set active_provider or a provider API key env var")
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := cache.NewStore(ctx, storeConfig(cfg))
	if err != nil {
		slog.Error("failed to initialize cache store", "error", err)
		os.Exit(1)
	}

	resultCache, err := cache.New(ctx, store,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cfg.Cache.MaxSize,
		cache.WithCleanupInterval(time.Duration(cfg.Cache.CleanupSeconds)*time.Second),
	)
	if err != nil {
		slog.Error("failed to initialize result cache", "error", err)
		os.Exit(1)
	}
	defer resultCache.Close()

	registry := providers.NewRegistry()
	for _, reg := range []providers.Registration{
		openai.Registration,
		anthropic.Registration,
		ollama.Registration,
	} {
		registry.Register(reg.Type, reg.New)
	}
	defer registry.DisposeAll()

	stopReclaim := startReclaimLoop(registry, cfg.Registry)
	defer stopReclaim()

	active := cfg.Providers[cfg.ActiveProvider]
	metrics := observability.New(prometheus.DefaultRegisterer)
	svc := motion.NewService(resultCache, registry, motion.Config{
		ActiveProvider: active.Type,
		ProviderConfig: active.Options,
	}, metrics)

	srv := server.New(svc, &server.Config{MetricsEnabled: cfg.Server.MetricsEnabled})
	addr := cfg.Server.Host + ":" + cfg.Server.Port

	go func() {
		slog.Info("listening", "addr", addr, "active_provider", cfg.ActiveProvider)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown error", "error", err)
	}
}

// startReclaimLoop periodically disposes provider instances past their
// maximum age. Returns a stop function.
func startReclaimLoop(registry *providers.Registry, cfg config.RegistryConfig) func() {
	if cfg.ReclaimSeconds <= 0 || cfg.MaxInstanceAgeSeconds <= 0 {
		return func() {}
	}

	interval := time.Duration(cfg.ReclaimSeconds) * time.Second
	maxAge := time.Duration(cfg.MaxInstanceAgeSeconds) * time.Second
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				registry.ReclaimStale(maxAge)
			}
		}
	}()
	return func() { close(done) }
}

// storeConfig maps the loaded configuration onto the cache store config.
func storeConfig(cfg *config.Config) cache.StoreConfig {
	s := cfg.Cache.Store
	return cache.StoreConfig{
		Type: s.Type,
		File: cache.FileStoreConfig{Path: s.File.Path},
		SQLite: cache.SQLiteStoreConfig{Path: s.SQLite.Path},
		Redis: cache.RedisStoreConfig{
			URL: s.Redis.URL,
			Key: s.Redis.Key,
			TTL: time.Duration(s.Redis.TTLSeconds) * time.Second,
		},
		Postgres: cache.PostgresStoreConfig{
			URL:      s.Postgres.URL,
			MaxConns: s.Postgres.MaxConns,
		},
		Mongo: cache.MongoStoreConfig{
			URL:        s.Mongo.URL,
			Database:   s.Mongo.Database,
			Collection: s.Mongo.Collection,
		},
	}
}
