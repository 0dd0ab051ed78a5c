//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -count=1

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/repo"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := store.ReplaceObservations(ctx, []domain.StatusObservation{
		{StoreID: "it-1", Timestamp: now.Add(-time.Hour), Status: domain.StatusActive, Seq: 1},
		{StoreID: "it-1", Timestamp: now, Status: domain.StatusInactive, Seq: 2},
	}); err != nil {
		t.Fatalf("ReplaceObservations: %v", err)
	}
	obs, err := store.ObservationsBetween(ctx, "it-1", now.Add(-time.Hour), now)
	if err != nil || len(obs) != 2 {
		t.Fatalf("ObservationsBetween: %d polls, err=%v", len(obs), err)
	}

	if err := store.ReplaceBusinessHours(ctx, []domain.BusinessHoursRule{
		{StoreID: "it-1", DayOfWeek: 4, StartLocal: domain.MustTimeOfDay("22:00"), EndLocal: domain.MustTimeOfDay("02:30:15")},
	}); err != nil {
		t.Fatalf("ReplaceBusinessHours: %v", err)
	}
	rules, err := store.BusinessHours(ctx, "it-1")
	if err != nil || len(rules) != 1 || rules[0].EndLocal != domain.MustTimeOfDay("02:30:15") {
		t.Fatalf("BusinessHours: %+v err=%v", rules, err)
	}

	id := "it-" + now.Format("150405.000000")
	if err := store.CreateReport(ctx, &domain.Report{ID: id}); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := store.SaveRows(ctx, []domain.ReportRow{{ReportID: id, StoreID: "it-1", UptimeLastHourMinutes: 60}}); err != nil {
		t.Fatalf("SaveRows: %v", err)
	}
	if err := store.CompleteReport(ctx, id, now); err != nil {
		t.Fatalf("CompleteReport: %v", err)
	}
	r, err := store.GetReport(ctx, id)
	if err != nil || r.Status != domain.ReportComplete || r.CompletedAt == nil {
		t.Fatalf("GetReport: %+v err=%v", r, err)
	}
	if _, err := store.GetReport(ctx, "does-not-exist"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "it-1", true, now); err != nil {
		t.Fatalf("alert Set: %v", err)
	}
	rec, err := store.Get(ctx, "it-1")
	if err != nil || rec == nil || !rec.LastDown {
		t.Fatalf("alert Get: %+v err=%v", rec, err)
	}
}
