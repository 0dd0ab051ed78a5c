// Package reconcile computes per-store uptime and downtime over trailing
// windows by intersecting the status timeline with business hours.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/bizhours"
	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/timeline"
)

// Lookback is how far before the widest window observations are fetched so
// the status at the window start is known.
const Lookback = time.Hour

type window struct {
	name  domain.WindowName
	span  time.Duration
	unit  domain.Unit
	scale time.Duration
}

var windows = []window{
	{domain.WindowLastHour, time.Hour, domain.UnitMinutes, time.Minute},
	{domain.WindowLastDay, 24 * time.Hour, domain.UnitHours, time.Hour},
	{domain.WindowLastWeek, 7 * 24 * time.Hour, domain.UnitHours, time.Hour},
}

// Widest is the span of the largest window.
func Widest() time.Duration { return windows[len(windows)-1].span }

type Input struct {
	StoreID      domain.StoreID
	Now          time.Time
	Observations []domain.StatusObservation
	Rules        []domain.BusinessHoursRule
	Location     *time.Location
}

// Compute is the pure reconciliation step: no I/O, no shared state.
func Compute(in Input) domain.StoreReport {
	loc := in.Location
	if loc == nil {
		loc = bizhours.ResolveLocation("")
	}
	rep := domain.StoreReport{StoreID: in.StoreID, Now: in.Now, Windows: make([]domain.WindowResult, 0, len(windows))}
	for _, w := range windows {
		start := in.Now.Add(-w.span)
		statuses := timeline.Interpolate(in.Observations, start, in.Now)
		open := bizhours.ForWindow(in.Rules, loc, start, in.Now)

		rep.Windows = append(rep.Windows, domain.WindowResult{
			StoreID:  in.StoreID,
			Window:   w.name,
			Uptime:   float64(Intersect(statuses, open, domain.StatusActive)) / float64(w.scale),
			Downtime: float64(Intersect(statuses, open, domain.StatusInactive)) / float64(w.scale),
			Unit:     w.unit,
		})
	}
	return rep
}

// Intersect sums the time a status overlaps the open intervals.
func Intersect(statuses []domain.StatusInterval, open []domain.Interval, target domain.Status) time.Duration {
	var total time.Duration
	for _, s := range statuses {
		if s.Status != target {
			continue
		}
		for _, o := range open {
			total += domain.Overlap(s.Start, s.End, o.Start, o.End)
		}
	}
	return total
}

type ObservationProvider interface {
	ObservationsBetween(ctx context.Context, id domain.StoreID, from, to time.Time) ([]domain.StatusObservation, error)
}

type BusinessHoursProvider interface {
	BusinessHours(ctx context.Context, id domain.StoreID) ([]domain.BusinessHoursRule, error)
}

// TimezoneProvider reports ok=false when the store has no assignment.
type TimezoneProvider interface {
	Timezone(ctx context.Context, id domain.StoreID) (string, bool, error)
}

type Reconciler struct {
	Logger          *zap.Logger
	Observations    ObservationProvider
	BusinessHours   BusinessHoursProvider
	Timezones       TimezoneProvider
	DefaultTimezone string
}

func NewReconciler(l *zap.Logger, obs ObservationProvider, bh BusinessHoursProvider, tz TimezoneProvider, defaultTZ string) *Reconciler {
	if defaultTZ == "" {
		defaultTZ = domain.DefaultTimezone
	}
	return &Reconciler{Logger: l, Observations: obs, BusinessHours: bh, Timezones: tz, DefaultTimezone: defaultTZ}
}

// ComputeStore fetches one store's inputs and runs Compute against now.
func (r *Reconciler) ComputeStore(ctx context.Context, id domain.StoreID, now time.Time) (domain.StoreReport, error) {
	tzName, ok, err := r.Timezones.Timezone(ctx, id)
	if err != nil {
		return domain.StoreReport{}, fmt.Errorf("timezone for %s: %w", id, err)
	}
	if !ok {
		tzName = r.DefaultTimezone
	}
	loc := r.location(id, tzName)

	rules, err := r.BusinessHours.BusinessHours(ctx, id)
	if err != nil {
		return domain.StoreReport{}, fmt.Errorf("business hours for %s: %w", id, err)
	}

	obs, err := r.Observations.ObservationsBetween(ctx, id, now.Add(-Widest()-Lookback), now)
	if err != nil {
		return domain.StoreReport{}, fmt.Errorf("observations for %s: %w", id, err)
	}

	return Compute(Input{StoreID: id, Now: now, Observations: obs, Rules: rules, Location: loc}), nil
}

func (r *Reconciler) location(id domain.StoreID, name string) *time.Location {
	if loc, ok := bizhours.LookupLocation(name); ok {
		return loc
	}
	if r.Logger != nil {
		r.Logger.Debug("timezone_fallback",
			zap.String("store_id", string(id)),
			zap.String("timezone", name),
			zap.String("fallback", r.DefaultTimezone),
		)
	}
	return bizhours.ResolveLocation(r.DefaultTimezone)
}
