package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	polls     map[domain.StoreID][]domain.StatusObservation
	hours     map[domain.StoreID][]domain.BusinessHoursRule
	timezones map[domain.StoreID]string
	reports   map[string]*domain.Report
	rows      map[string][]domain.ReportRow
	alerts    map[domain.StoreID]repo.AlertRecord
}

func New() *Store {
	return &Store{
		polls:     make(map[domain.StoreID][]domain.StatusObservation),
		hours:     make(map[domain.StoreID][]domain.BusinessHoursRule),
		timezones: make(map[domain.StoreID]string),
		reports:   make(map[string]*domain.Report),
		rows:      make(map[string][]domain.ReportRow),
		alerts:    make(map[domain.StoreID]repo.AlertRecord),
	}
}

func (m *Store) Close() {}

// ---- ObservationStore ----

func (m *Store) ReplaceObservations(ctx context.Context, obs []domain.StatusObservation) error {
	polls := make(map[domain.StoreID][]domain.StatusObservation)
	for _, o := range obs {
		polls[o.StoreID] = append(polls[o.StoreID], o)
	}
	m.mu.Lock()
	m.polls = polls
	m.mu.Unlock()
	return nil
}

func (m *Store) ObservationsBetween(ctx context.Context, id domain.StoreID, from, to time.Time) ([]domain.StatusObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StatusObservation
	for _, o := range m.polls[id] {
		if o.Timestamp.Before(from) || o.Timestamp.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *Store) StoreIDs(ctx context.Context) ([]domain.StoreID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.StoreID, 0, len(m.polls))
	for id := range m.polls {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Store) MaxObservedAt(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest time.Time
	found := false
	for _, polls := range m.polls {
		for _, o := range polls {
			if !found || o.Timestamp.After(latest) {
				latest, found = o.Timestamp, true
			}
		}
	}
	return latest, found, nil
}

// ---- BusinessHoursStore ----

func (m *Store) ReplaceBusinessHours(ctx context.Context, rules []domain.BusinessHoursRule) error {
	hours := make(map[domain.StoreID][]domain.BusinessHoursRule)
	for _, r := range rules {
		hours[r.StoreID] = append(hours[r.StoreID], r)
	}
	m.mu.Lock()
	m.hours = hours
	m.mu.Unlock()
	return nil
}

func (m *Store) BusinessHours(ctx context.Context, id domain.StoreID) ([]domain.BusinessHoursRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BusinessHoursRule(nil), m.hours[id]...), nil
}

// ---- TimezoneStore ----

func (m *Store) ReplaceTimezones(ctx context.Context, tzs []domain.StoreTimezone) error {
	timezones := make(map[domain.StoreID]string, len(tzs))
	for _, tz := range tzs {
		timezones[tz.StoreID] = tz.Timezone
	}
	m.mu.Lock()
	m.timezones = timezones
	m.mu.Unlock()
	return nil
}

func (m *Store) Timezone(ctx context.Context, id domain.StoreID) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tz, ok := m.timezones[id]
	return tz, ok, nil
}

// ---- ReportStore ----

func (m *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.ReportRunning
	}
	cp := *r
	m.mu.Lock()
	m.reports[r.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *Store) SaveRows(ctx context.Context, rows []domain.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.rows[r.ReportID] = append(m.rows[r.ReportID], r)
	}
	return nil
}

func (m *Store) CompleteReport(ctx context.Context, id string, at time.Time) error {
	return m.finish(id, domain.ReportComplete, at, "")
}

func (m *Store) FailReport(ctx context.Context, id string, at time.Time, reason string) error {
	return m.finish(id, domain.ReportError, at, reason)
}

func (m *Store) finish(id string, st domain.ReportStatus, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return repo.ErrNotFound
	}
	r.Status = st
	r.CompletedAt = &at
	r.Error = reason
	return nil
}

func (m *Store) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Store) ReportRows(ctx context.Context, id string) ([]domain.ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]domain.ReportRow(nil), m.rows[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

func (m *Store) LatestCompleted(ctx context.Context) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Report
	for _, r := range m.reports {
		if r.Status != domain.ReportComplete || r.CompletedAt == nil {
			continue
		}
		if latest == nil || r.CompletedAt.After(*latest.CompletedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// ---- AlertStore ----

func (m *Store) Get(ctx context.Context, id domain.StoreID) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) Set(ctx context.Context, id domain.StoreID, down bool, sentAt time.Time) error {
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.mu.Lock()
	m.alerts[id] = repo.AlertRecord{StoreID: id, LastDown: down, LastSentAt: ts}
	m.mu.Unlock()
	return nil
}
