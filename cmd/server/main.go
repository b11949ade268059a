package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nexusdrive/internal/server/api"
	"nexusdrive/internal/server/config"
	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/geo"
	"nexusdrive/internal/server/service"
	"nexusdrive/internal/server/session"
	"nexusdrive/internal/server/storage"

	"github.com/go-redis/redis/v8"
)

const (
	maxMemorySessions = 100000
	trackTimeout      = 10 * time.Second
)

func main() {
	// Load config
	cfg := config.Load()

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"share_root", cfg.ShareRoot,
		"config_file", cfg.ConfigFile,
		"session_backend", cfg.SessionBackend,
		"max_upload", cfg.MaxUpload,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.ShareRoot)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.ShareRoot)

	// Credentials file is created with defaults on first run
	creds := config.NewCredentialStore(cfg.ConfigFile)
	creds.Load()

	// Session store
	sessionStore, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer closeSessions()
	sessions := session.NewManager(sessionStore, cfg.SessionTTL, cfg.CookieSecure)

	// IP geolocation for the activity log
	locator, err := geo.NewLocator(cfg.GeoLookupURL, cfg.GeoLookupTimeout)
	if err != nil {
		slog.Error("failed to initialize ip locator", "error", err)
		os.Exit(1)
	}
	defer locator.Close()

	// Initialize repositories and services
	shareRepo := database.NewShareRepository(db)
	activityRepo := database.NewActivityRepository(db)

	activity := service.NewActivityService(activityRepo, locator)
	tracker := service.NewTracker(activity, trackTimeout)
	shares := service.NewShareService(shareRepo, store, tracker)
	files := service.NewFileService(store)
	auth := service.NewAuthService(creds, tracker, cfg.LoginFailureDelay)

	// Start purge service if enabled
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	var purge *service.PurgeService
	if cfg.PurgeInterval > 0 {
		purge = service.NewPurgeService(shareRepo, cfg.PurgeInterval, cfg.PurgeAfter)
		purge.Start(purgeCtx)
	}

	// Setup HTTP router
	handler := api.NewHandler(api.Deps{
		Files:    files,
		Shares:   shares,
		Activity: activity,
		Auth:     auth,
		Tracker:  tracker,
		Sessions: sessions,
		DB:       db,
		BaseURL:  cfg.BaseURL,
	})
	e := api.SetupRouter(handler, sessions, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Flush pending activity writes
	tracker.Wait()
	if n := tracker.Failures(); n > 0 {
		slog.Warn("activity writes failed during run", "count", n)
	}

	// Stop purge service
	purgeCancel()
	if purge != nil {
		purge.Wait()
	}

	slog.Info("server exited cleanly")
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("session store initialized", "backend", "redis", "addr", cfg.RedisAddr)
		return session.NewRedisStore(client), func() { client.Close() }, nil
	case "memory", "":
		store, err := session.NewMemoryStore(maxMemorySessions)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store initialized", "backend", "memory")
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
