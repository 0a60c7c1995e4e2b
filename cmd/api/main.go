package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/eventlog"
	"github.com/hamed0406/sitewatch/internal/history"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/subscription"
	"github.com/hamed0406/sitewatch/internal/ws"
)

const shutdownGrace = 15 * time.Second

// backend is everything a storage adapter provides.
type backend interface {
	repo.SiteStore
	repo.HistoryStore
	repo.EventStore
	repo.AlertStore
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogDir, logging.Options{Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hist := history.New(store, history.Options{
		DayWindow:  cfg.DayWindow,
		WeekWindow: cfg.WeekWindow,
		Limit:      cfg.HistoryLimit,
	})
	events := eventlog.NewRecorder(logger, store)

	reg := subscription.NewRegistry()
	hub := ws.New(reg, logger, cfg.AllowedOrigins)
	go hub.Run(ctx)

	sched := scheduler.New(scheduler.Deps{
		Log:       logger,
		Sites:     store,
		History:   hist,
		Checker:   probe.NewHTTPChecker(cfg.HTTPTimeout),
		Events:    events,
		Publisher: subscription.NewBroadcaster(reg, logger),
	}, scheduler.Options{
		Interval:    cfg.CheckInterval,
		Timeout:     cfg.HTTPTimeout,
		Concurrency: cfg.MaxConcurrentChecks,
	})

	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		al := scheduler.NewAlerter(logger, store, store, notify.Multi{slack}, scheduler.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
			PollInterval:    cfg.AlertPollInterval,
		})
		go func() { _ = al.Run(ctx) }()
		logger.Info("alerter_enabled", zap.Duration("cooldown", cfg.AlertCooldown))
	}

	api := httpapi.NewServer(logger, store, hist, sched, hub, events)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sched.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			sched.Stop()
			sched.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	// no new batches, then drain HTTP, then let dispatched checks land
	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	sched.Wait()
	logger.Info("shutdown_complete")
	return nil
}

// openStore picks PostgreSQL when DATABASE_URL is set, SQLite when
// SQLITE_PATH is set, and process memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("store_selected", zap.String("kind", "postgres"))
		return pg, pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("store_selected", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath))
		return lite, func() { _ = lite.Close() }, nil
	default:
		logger.Warn("store_selected", zap.String("kind", "memory"))
		return memory.New(), func() {}, nil
	}
}
