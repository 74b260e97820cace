package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smartseller/backend/internal/cache"
	"smartseller/backend/internal/config"
	"smartseller/backend/internal/events"
	"smartseller/backend/internal/httpapi"
	"smartseller/backend/internal/logger"
	"smartseller/backend/internal/service"
	"smartseller/backend/internal/store"
	"smartseller/backend/internal/store/memory"
	pgstore "smartseller/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AuthDisabled {
		log.Warn("authentication disabled; every request acts as the vendor")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(startCtx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository ready", "backend", "memory")
	}

	var settingsCache cache.SettingsCache = cache.NewMemorySettingsCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSettingsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			log.Warn("redis unavailable, using in-process settings cache", "error", err)
			_ = redisCache.Close()
		} else {
			settingsCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("settings cache ready", "backend", "redis")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(logger.WithComponent(log, "events"), cfg.AllowedOrigin)
	go hub.Run(ctx)

	svc := service.New(repo, settingsCache, cfg.SettingsCacheTTL(), hub, log)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.VendorPassword, cfg.AuthDisabled)
	api := httpapi.New(svc, auth, hub, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("smartseller backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", "error", err)
		}
	}

	log.Info("server stopped")
	return runErr
}

func validateSecurityConfig(cfg config.Config) error {
	if cfg.AuthDisabled {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.VendorPassword) < 8 {
		return fmt.Errorf("VENDOR_PASSWORD must be set and at least 8 characters")
	}
	if err := validatePasswordStrength(cfg.VendorPassword); err != nil {
		return fmt.Errorf("VENDOR_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects well-known passwords and passwords made of
// a single repeated character. Pre-hashed bcrypt values are accepted as is.
func validatePasswordStrength(password string) error {
	if strings.HasPrefix(password, "$2") {
		return nil
	}

	known := map[string]bool{
		"password": true, "password1": true, "12345678": true, "123456789": true,
		"qwertyui": true, "qwerty123": true, "iloveyou": true, "admin123": true,
		"welcome1": true, "letmein1": true, "changeme": true, "11111111": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character password not allowed")
	}
	return nil
}
