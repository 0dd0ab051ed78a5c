// Package ingest loads the store status, business hours and timezone CSV
// exports into the repository, replacing whatever was there before.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/metrics"
)

const (
	StatusFile    = "store_status.csv"
	HoursFile     = "menu_hours.csv"
	TimezonesFile = "timezones.csv"
)

// Target receives the parsed datasets.
type Target interface {
	ReplaceObservations(ctx context.Context, obs []domain.StatusObservation) error
	ReplaceBusinessHours(ctx context.Context, rules []domain.BusinessHoursRule) error
	ReplaceTimezones(ctx context.Context, tzs []domain.StoreTimezone) error
}

// Dataset is the parsed content of one data directory.
type Dataset struct {
	Observations []domain.StatusObservation
	Rules        []domain.BusinessHoursRule
	Timezones    []domain.StoreTimezone
	// RowErrors holds one error per skipped row (see multierr.Errors).
	RowErrors error
}

type Counts struct {
	Observations  int `json:"store_status_polls"`
	BusinessHours int `json:"business_hours"`
	Timezones     int `json:"store_timezones"`
	Skipped       int `json:"skipped_rows"`
}

func (d *Dataset) Counts() Counts {
	return Counts{
		Observations:  len(d.Observations),
		BusinessHours: len(d.Rules),
		Timezones:     len(d.Timezones),
		Skipped:       len(multierr.Errors(d.RowErrors)),
	}
}

type Ingester struct {
	Store   Target
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func New(store Target, log *zap.Logger, m *metrics.Metrics) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{Store: store, Log: log, Metrics: m}
}

// Run parses dir and replaces all three datasets. Skipped rows are reported
// in the returned Dataset and never fail the run.
func (i *Ingester) Run(ctx context.Context, dir string) (*Dataset, error) {
	start := time.Now()
	ds, err := Parse(dir)
	if err != nil {
		return nil, err
	}
	i.record(ds)

	if err := i.Store.ReplaceObservations(ctx, ds.Observations); err != nil {
		return nil, fmt.Errorf("store polls: %w", err)
	}
	if err := i.Store.ReplaceBusinessHours(ctx, ds.Rules); err != nil {
		return nil, fmt.Errorf("store business hours: %w", err)
	}
	if err := i.Store.ReplaceTimezones(ctx, ds.Timezones); err != nil {
		return nil, fmt.Errorf("store timezones: %w", err)
	}

	c := ds.Counts()
	i.Log.Info("ingest_done",
		zap.String("dir", dir),
		zap.Int("polls", c.Observations),
		zap.Int("business_hours", c.BusinessHours),
		zap.Int("timezones", c.Timezones),
		zap.Int("skipped", c.Skipped),
		zap.Duration("took", time.Since(start)),
	)
	return ds, nil
}

func (i *Ingester) record(ds *Dataset) {
	skipped := map[string]int{}
	for _, err := range multierr.Errors(ds.RowErrors) {
		var re *RowError
		if errors.As(err, &re) {
			skipped[re.File]++
			i.Log.Debug("ingest_row_skipped", zap.String("file", re.File), zap.Int("line", re.Line), zap.Error(re.Err))
		}
	}
	i.Metrics.IngestRowsAdd(StatusFile, "loaded", len(ds.Observations))
	i.Metrics.IngestRowsAdd(HoursFile, "loaded", len(ds.Rules))
	i.Metrics.IngestRowsAdd(TimezonesFile, "loaded", len(ds.Timezones))
	for f, n := range skipped {
		i.Metrics.IngestRowsAdd(f, "skipped", n)
	}
}

// RowError describes a CSV row that was skipped.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("%s line %d: %v", e.File, e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// Parse reads the three CSV files in dir without touching any store.
// A missing directory or file is an error wrapping fs.ErrNotExist.
func Parse(dir string) (*Dataset, error) {
	for _, name := range []string{StatusFile, HoursFile, TimezonesFile} {
		p := filepath.Join(dir, name)
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("required data file not found: %w", err)
		}
		if st.IsDir() {
			return nil, fmt.Errorf("required data file %s is a directory", p)
		}
	}

	ds := &Dataset{}
	var err error
	if ds.Observations, err = parseFile(dir, StatusFile, ds, parseStatusRows); err != nil {
		return nil, err
	}
	if ds.Rules, err = parseFile(dir, HoursFile, ds, parseHoursRows); err != nil {
		return nil, err
	}
	if ds.Timezones, err = parseFile(dir, TimezonesFile, ds, parseTimezoneRows); err != nil {
		return nil, err
	}
	return ds, nil
}

func parseFile[T any](dir, name string, ds *Dataset, fn func(*table, *Dataset) ([]T, error)) ([]T, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	t, err := newTable(name, f)
	if err != nil {
		return nil, err
	}
	return fn(t, ds)
}

// table is a header-aware CSV reader.
type table struct {
	name string
	r    *csv.Reader
	cols map[string]int
}

func newTable(name string, rd io.Reader) (*table, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err == io.EOF {
		return &table{name: name, r: r, cols: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return &table{name: name, r: r, cols: cols}, nil
}

// each calls fn for every data row; fn errors become RowErrors on ds.
func (t *table) each(ds *Dataset, fn func(get func(...string) string) error) error {
	for {
		rec, err := t.r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				ds.RowErrors = multierr.Append(ds.RowErrors, &RowError{File: t.name, Line: pe.Line, Err: pe.Err})
				continue
			}
			return fmt.Errorf("read %s: %w", t.name, err)
		}
		line, _ := t.r.FieldPos(0)
		get := func(names ...string) string {
			for _, n := range names {
				if i, ok := t.cols[strings.ToLower(n)]; ok && i < len(rec) {
					return strings.TrimSpace(rec[i])
				}
			}
			return ""
		}
		if err := fn(get); err != nil {
			ds.RowErrors = multierr.Append(ds.RowErrors, &RowError{File: t.name, Line: line, Err: err})
		}
	}
}

func parseStatusRows(t *table, ds *Dataset) ([]domain.StatusObservation, error) {
	var out []domain.StatusObservation
	var seq int64
	err := t.each(ds, func(get func(...string) string) error {
		id := get("store_id")
		if id == "" {
			return errors.New("missing store_id")
		}
		st, err := domain.ParseStatus(get("status"))
		if err != nil {
			return err
		}
		ts, err := ParseTimestamp(get("timestamp_utc", "timestamp"))
		if err != nil {
			return err
		}
		seq++
		out = append(out, domain.StatusObservation{StoreID: domain.StoreID(id), Timestamp: ts, Status: st, Seq: seq})
		return nil
	})
	return out, err
}

type ruleKey struct {
	store domain.StoreID
	day   int
}

func parseHoursRows(t *table, ds *Dataset) ([]domain.BusinessHoursRule, error) {
	var out []domain.BusinessHoursRule
	idx := map[ruleKey]int{}
	err := t.each(ds, func(get func(...string) string) error {
		id := get("store_id")
		if id == "" {
			return errors.New("missing store_id")
		}
		day, err := strconv.Atoi(get("dayOfWeek", "day_of_week", "day"))
		if err != nil || day < 0 || day > 6 {
			return fmt.Errorf("invalid day of week %q", get("dayOfWeek", "day_of_week", "day"))
		}
		start, err := domain.ParseTimeOfDay(get("start_time_local"))
		if err != nil {
			return err
		}
		end, err := domain.ParseTimeOfDay(get("end_time_local"))
		if err != nil {
			return err
		}
		r := domain.BusinessHoursRule{StoreID: domain.StoreID(id), DayOfWeek: day, StartLocal: start, EndLocal: end}
		// Duplicates: the last row wins but keeps the first row's position.
		k := ruleKey{r.StoreID, day}
		if i, ok := idx[k]; ok {
			out[i] = r
			return nil
		}
		idx[k] = len(out)
		out = append(out, r)
		return nil
	})
	return out, err
}

func parseTimezoneRows(t *table, ds *Dataset) ([]domain.StoreTimezone, error) {
	var out []domain.StoreTimezone
	idx := map[domain.StoreID]int{}
	err := t.each(ds, func(get func(...string) string) error {
		id := domain.StoreID(get("store_id"))
		if id == "" {
			return errors.New("missing store_id")
		}
		tz := domain.StoreTimezone{StoreID: id, Timezone: get("timezone_str", "timezone")}
		if i, ok := idx[id]; ok {
			out[i] = tz
			return nil
		}
		idx[id] = len(out)
		out = append(out, tz)
		return nil
	})
	return out, err
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses poll timestamps such as
// "2023-01-22 12:09:39.388884 UTC" (fraction and zone name optional) or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if i := strings.LastIndexByte(s, ' '); i > 0 && strings.EqualFold(s[i+1:], "UTC") {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
