package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/storemonitor/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ports (interfaces); the memory and postgres adapters implement all of them.

type ObservationStore interface {
	// ReplaceObservations drops every stored poll and loads obs instead.
	ReplaceObservations(ctx context.Context, obs []domain.StatusObservation) error
	// ObservationsBetween returns a store's polls with from <= ts <= to.
	ObservationsBetween(ctx context.Context, id domain.StoreID, from, to time.Time) ([]domain.StatusObservation, error)
	StoreIDs(ctx context.Context) ([]domain.StoreID, error)
	// MaxObservedAt reports ok=false when there are no polls at all.
	MaxObservedAt(ctx context.Context) (time.Time, bool, error)
}

type BusinessHoursStore interface {
	ReplaceBusinessHours(ctx context.Context, rules []domain.BusinessHoursRule) error
	BusinessHours(ctx context.Context, id domain.StoreID) ([]domain.BusinessHoursRule, error)
}

type TimezoneStore interface {
	ReplaceTimezones(ctx context.Context, tzs []domain.StoreTimezone) error
	// Timezone reports ok=false when the store has no assignment.
	Timezone(ctx context.Context, id domain.StoreID) (string, bool, error)
}

type ReportStore interface {
	CreateReport(ctx context.Context, r *domain.Report) error
	SaveRows(ctx context.Context, rows []domain.ReportRow) error
	CompleteReport(ctx context.Context, id string, at time.Time) error
	FailReport(ctx context.Context, id string, at time.Time, reason string) error
	// GetReport returns ErrNotFound for unknown ids.
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	ReportRows(ctx context.Context, id string) ([]domain.ReportRow, error)
	// LatestCompleted returns ErrNotFound when no report has completed yet.
	LatestCompleted(ctx context.Context) (*domain.Report, error)
}

// AlertRecord holds last-known state for a store and the last time we sent
// a notification (used for cooldown).
type AlertRecord struct {
	StoreID    domain.StoreID
	LastDown   bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, id domain.StoreID) (*AlertRecord, error)
	// Set upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	Set(ctx context.Context, id domain.StoreID, down bool, sentAt time.Time) error
}

// Store is everything the service needs from persistence.
type Store interface {
	ObservationStore
	BusinessHoursStore
	TimezoneStore
	ReportStore
	AlertStore
	Close()
}
