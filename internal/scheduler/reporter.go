package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/metrics"
	"github.com/hamed0406/storemonitor/internal/notify"
	"github.com/hamed0406/storemonitor/internal/repo"
)

// StoreComputer is satisfied by *reconcile.Reconciler.
type StoreComputer interface {
	ComputeStore(ctx context.Context, id domain.StoreID, now time.Time) (domain.StoreReport, error)
}

// StoreLister supplies the stores to report on and the reference instant.
type StoreLister interface {
	StoreIDs(ctx context.Context) ([]domain.StoreID, error)
	MaxObservedAt(ctx context.Context) (time.Time, bool, error)
}

type Reporter struct {
	Logger      *zap.Logger
	Stores      StoreLister
	Reports     repo.ReportStore
	Computer    StoreComputer
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Interval    time.Duration
	Concurrency int

	now func() time.Time
	wg  sync.WaitGroup
}

func NewReporter(
	logger *zap.Logger,
	stores StoreLister,
	reports repo.ReportStore,
	computer StoreComputer,
	interval time.Duration,
	concurrency int,
) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	return &Reporter{
		Logger:      logger,
		Stores:      stores,
		Reports:     reports,
		Computer:    computer,
		Interval:    interval,
		Concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Trigger registers a Running report and generates it in the background.
// The generation outlives ctx's cancellation.
func (r *Reporter) Trigger(ctx context.Context) (string, error) {
	id, err := r.create(ctx)
	if err != nil {
		return "", err
	}
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Generate(bg, id)
	}()
	return id, nil
}

// Wait blocks until every report started by Trigger has finished.
func (r *Reporter) Wait() { r.wg.Wait() }

func (r *Reporter) create(ctx context.Context) (string, error) {
	rep := &domain.Report{
		ID:        uuid.NewString(),
		Status:    domain.ReportRunning,
		CreatedAt: r.now(),
	}
	if err := r.Reports.CreateReport(ctx, rep); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	return rep.ID, nil
}

// ReferenceInstant is the latest observed poll, or the wall clock when
// nothing has been ingested.
func (r *Reporter) ReferenceInstant(ctx context.Context) (time.Time, error) {
	ts, ok, err := r.Stores.MaxObservedAt(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("reference instant: %w", err)
	}
	if !ok {
		return r.now(), nil
	}
	return ts, nil
}

// Generate computes every store against one reference instant and stores the
// rows. The report ends Complete, or Error with the failure message.
func (r *Reporter) Generate(ctx context.Context, id string) error {
	started := time.Now()
	r.Logger.Info("report_started", zap.String("report_id", id))

	n, err := r.generate(ctx, id)
	took := time.Since(started)
	if err != nil {
		r.Logger.Warn("report_failed", zap.String("report_id", id), zap.Error(err))
		if ferr := r.Reports.FailReport(context.WithoutCancel(ctx), id, r.now(), err.Error()); ferr != nil {
			r.Logger.Warn("report_fail_record_error", zap.String("report_id", id), zap.Error(ferr))
		}
		r.Metrics.ReportFinished(string(domain.ReportError), took)
		r.notify(ctx, "Report failed", fmt.Sprintf("Report: %s\nError: %v", id, err))
		return err
	}

	r.Logger.Info("report_complete",
		zap.String("report_id", id),
		zap.Int("stores", n),
		zap.Duration("took", took),
	)
	r.Metrics.ReportFinished(string(domain.ReportComplete), took)
	r.notify(ctx, "Report complete", fmt.Sprintf("Report: %s\nStores: %d\nTook: %s", id, n, took.Round(time.Millisecond)))
	return nil
}

func (r *Reporter) generate(ctx context.Context, id string) (int, error) {
	now, err := r.ReferenceInstant(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := r.Stores.StoreIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}

	rows := make([]domain.ReportRow, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Concurrency)
	for i, sid := range ids {
		g.Go(func() error {
			t0 := time.Now()
			rep, err := r.Computer.ComputeStore(gctx, sid, now)
			if err != nil {
				return fmt.Errorf("store %s: %w", sid, err)
			}
			r.Metrics.StoreComputed(time.Since(t0))
			rows[i] = domain.NewReportRow(id, rep)
			r.Logger.Debug("store_computed",
				zap.String("report_id", id),
				zap.String("store_id", string(sid)),
				zap.Int("uptime_last_hour", rows[i].UptimeLastHourMinutes),
				zap.Int("downtime_last_hour", rows[i].DowntimeLastHourMinutes),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := r.Reports.SaveRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("save rows: %w", err)
	}
	if err := r.Reports.CompleteReport(ctx, id, r.now()); err != nil {
		return 0, fmt.Errorf("complete report: %w", err)
	}
	return len(rows), nil
}

func (r *Reporter) notify(ctx context.Context, title, text string) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Send(ctx, title, text); err != nil {
		r.Logger.Warn("report_notify_error", zap.Error(err))
	}
}

// Run generates a report immediately and then on every tick until ctx is
// cancelled. A zero Interval disables periodic reports.
func (r *Reporter) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("reporter_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("reporter_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reporter) runOnce(ctx context.Context) {
	id, err := r.create(ctx)
	if err != nil {
		r.Logger.Warn("reporter_create_error", zap.Error(err))
		return
	}
	_ = r.Generate(ctx, id)
}
