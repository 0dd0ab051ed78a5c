package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/metrics"
	"github.com/hamed0406/storemonitor/internal/notify"
	"github.com/hamed0406/storemonitor/internal/repo"
)

type AlerterConfig struct {
	// DowntimeMinutes is the last-hour downtime at which a store counts as down.
	DowntimeMinutes int
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// Alerter watches the latest completed report and notifies when a store's
// last-hour downtime crosses the threshold.
type Alerter struct {
	log      *zap.Logger
	reports  repo.ReportStore
	alertDB  repo.AlertStore
	notifier notify.Notifier
	metrics  *metrics.Metrics
	cfg      AlerterConfig
	now      func() time.Time
}

func NewAlerter(
	log *zap.Logger,
	reports repo.ReportStore,
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	m *metrics.Metrics,
	cfg AlerterConfig,
) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DowntimeMinutes < 1 {
		cfg.DowntimeMinutes = 1
	}
	return &Alerter{
		log:      log,
		reports:  reports,
		alertDB:  alertDB,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run scans immediately and then every PollInterval. A zero interval
// disables the alerter.
func (a *Alerter) Run(ctx context.Context) error {
	if a.cfg.PollInterval <= 0 {
		a.log.Info("alerter_disabled")
		return nil
	}
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	a.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.scan(ctx)
		}
	}
}

func (a *Alerter) scan(ctx context.Context) {
	if err := a.scanOnce(ctx); err != nil {
		a.log.Warn("alerter_scan_error", zap.Error(err))
	}
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	rep, err := a.reports.LatestCompleted(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest report: %w", err)
	}
	rows, err := a.reports.ReportRows(ctx, rep.ID)
	if err != nil {
		return fmt.Errorf("report rows: %w", err)
	}

	now := a.now()

	for _, r := range rows {
		down := r.DowntimeLastHourMinutes >= a.cfg.DowntimeMinutes

		rec, err := a.alertDB.Get(ctx, r.StoreID)
		if err != nil {
			a.log.Warn("alerter_state_error", zap.String("store_id", string(r.StoreID)), zap.Error(err))
			continue
		}

		stateChanged := rec == nil || rec.LastDown != down

		// Cooldown only throttles DOWN alerts.
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && down && cooled
		// A recovery needs a previously recorded DOWN.
		recoveryAlert := !down && rec != nil && rec.LastDown && a.cfg.AlertOnRecovery

		if downAlert || recoveryAlert {
			kind, title := "down", "🔴 Store DOWN"
			if !down {
				kind, title = "recovered", "🟢 Store RECOVERED"
			}
			if err := a.notifier.Send(ctx, title, alertText(rep, r, a.cfg.DowntimeMinutes)); err != nil {
				// State stays unchanged so the next scan retries.
				a.log.Warn("alerter_send_error", zap.String("store_id", string(r.StoreID)), zap.Error(err))
				continue
			}
			a.metrics.AlertSent(kind)
			a.record(ctx, r.StoreID, down, now)
			continue
		}

		// Record the new state without a send; the last send time keeps
		// the cooldown running.
		if stateChanged {
			var sentAt time.Time
			if rec != nil && rec.LastSentAt != nil {
				sentAt = *rec.LastSentAt
			}
			a.record(ctx, r.StoreID, down, sentAt)
		}
	}
	return nil
}

func (a *Alerter) record(ctx context.Context, id domain.StoreID, down bool, sentAt time.Time) {
	if err := a.alertDB.Set(ctx, id, down, sentAt); err != nil {
		a.log.Warn("alerter_state_error", zap.String("store_id", string(id)), zap.Error(err))
	}
}

func alertText(rep *domain.Report, r domain.ReportRow, threshold int) string {
	completed := "n/a"
	if rep.CompletedAt != nil {
		completed = rep.CompletedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"Store: %s\nDowntime last hour: %d min (threshold %d)\nUptime last hour: %d min\nDowntime last day: %.2f h\nReport: %s (%s)",
		r.StoreID, r.DowntimeLastHourMinutes, threshold, r.UptimeLastHourMinutes, r.DowntimeLastDayHours, rep.ID, completed,
	)
}
