package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/storemonitor/internal/config"
	"github.com/hamed0406/storemonitor/internal/httpapi"
	apimw "github.com/hamed0406/storemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/storemonitor/internal/ingest"
	"github.com/hamed0406/storemonitor/internal/logging"
	"github.com/hamed0406/storemonitor/internal/metrics"
	"github.com/hamed0406/storemonitor/internal/notify"
	"github.com/hamed0406/storemonitor/internal/reconcile"
	"github.com/hamed0406/storemonitor/internal/repo"
	"github.com/hamed0406/storemonitor/internal/repo/memory"
	"github.com/hamed0406/storemonitor/internal/repo/postgres"
	"github.com/hamed0406/storemonitor/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifier := notify.Multi{notify.Log{L: logger}}
	if s := notify.NewSlack(cfg.SlackWebhookURL, cfg.SlackChannel); s != nil {
		notifier = append(notifier, s)
	}

	rec := reconcile.NewReconciler(logger, store, store, store, cfg.DefaultTimezone)
	reporter := scheduler.NewReporter(logger, store, store, rec, cfg.ReportInterval, cfg.ReportConcurrency)
	reporter.Notifier = notifier
	reporter.Metrics = m

	alerter := scheduler.NewAlerter(logger, store, store, notifier, m, scheduler.AlerterConfig{
		DowntimeMinutes: cfg.AlertDowntimeMinutes,
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
		PollInterval:    cfg.AlertPollInterval,
	})

	api := httpapi.NewServer(logger, store, ingest.New(store, logger, m), reporter, rec)
	api.Gatherer = reg
	api.DataDir = cfg.DataDir

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	if !keys.Enabled() {
		logger.Warn("api_keys_not_configured")
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	g.Go(func() error { return ignoreCanceled(alerter.Run(gctx)) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", zap.Error(err))
	}
	api.Wait()
	reporter.Wait()
	logger.Info("api_shutdown")
}

// ignoreCanceled treats a cancelled context as a clean stop.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_memory")
		return memory.New(), nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	logger.Info("store_postgres")
	return pg, nil
}
