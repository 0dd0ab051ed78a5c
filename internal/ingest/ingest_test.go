package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/storemonitor/internal/domain"
	"github.com/hamed0406/storemonitor/internal/metrics"
	"github.com/hamed0406/storemonitor/internal/repo/memory"
)

func writeDir(t *testing.T, status, hours, tzs string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		StatusFile:    status,
		HoursFile:     hours,
		TimezonesFile: tzs,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2023, 1, 22, 12, 9, 39, 388884000, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2023-01-22 12:09:39.388884 UTC", want},
		{"2023-01-22 12:09:39 UTC", want.Truncate(time.Second)},
		{"2023-01-22 12:09:39.388884", want},
		{"2023-01-22T12:09:39.388884Z", want},
		{"2023-01-22T13:09:39.388884+01:00", want},
	}
	for _, c := range cases {
		got, err := ParseTimestamp(c.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", c.in, err)
		}
		if !got.Equal(c.want) || got.Location() != time.UTC {
			t.Fatalf("ParseTimestamp(%q)=%v want %v", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"", "yesterday", "2023-13-01 00:00:00 UTC"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Fatalf("ParseTimestamp(%q) should fail", bad)
		}
	}
}

func TestParse_SkipsInvalidRowsAndDedupes(t *testing.T) {
	dir := writeDir(t,
		"store_id,status,timestamp_utc\n"+
			"s1,active,2024-01-25 10:00:00.000000 UTC\n"+
			"s1,sleeping,2024-01-25 10:10:00 UTC\n"+
			"s1,inactive,2024-01-25 10:30:00.000000 UTC\n"+
			",active,2024-01-25 10:40:00 UTC\n"+
			"s2,active,not-a-time\n",
		"store_id,dayOfWeek,start_time_local,end_time_local\n"+
			"s1,0,09:00:00,17:00:00\n"+
			"s1,1,09:00:00,17:00:00\n"+
			"s1,0,10:00:00,18:00:00\n"+
			"s1,9,10:00:00,18:00:00\n",
		"store_id,timezone_str\n"+
			"s1,America/New_York\n",
	)

	ds, err := Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c := ds.Counts()
	if c.Observations != 2 || c.BusinessHours != 2 || c.Timezones != 1 || c.Skipped != 4 {
		t.Fatalf("unexpected counts: %+v (%v)", c, ds.RowErrors)
	}
	if ds.Observations[0].Seq != 1 || ds.Observations[1].Seq != 2 {
		t.Fatalf("seq should follow file order: %+v", ds.Observations)
	}
	if ds.Rules[0].DayOfWeek != 0 || ds.Rules[0].StartLocal != domain.MustTimeOfDay("10:00") {
		t.Fatalf("duplicate weekday should keep the last row: %+v", ds.Rules[0])
	}

	var re *RowError
	errs := multierr.Errors(ds.RowErrors)
	if !errors.As(errs[0], &re) || re.File != StatusFile || re.Line != 3 {
		t.Fatalf("first row error=%v", errs[0])
	}
}

func TestParse_SnakeCaseDayColumn(t *testing.T) {
	dir := writeDir(t,
		"store_id,status,timestamp_utc\n",
		"store_id,day_of_week,start_time_local,end_time_local\n"+
			"s1,6,22:00,02:00\n",
		"store_id,timezone_str\n",
	)
	ds, err := Parse(dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds.Rules) != 1 || !ds.Rules[0].Overnight() {
		t.Fatalf("rules=%+v", ds.Rules)
	}
}

func TestParse_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, StatusFile), []byte("store_id,status,timestamp_utc\n"), 0o644)

	_, err := Parse(dir)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want fs.ErrNotExist, got %v", err)
	}
}

func TestIngester_RunReplacesStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ing := New(store, zap.NewNop(), m)

	// Stale data must disappear.
	_ = store.ReplaceTimezones(ctx, []domain.StoreTimezone{{StoreID: "old", Timezone: "UTC"}})

	dir := writeDir(t,
		"store_id,status,timestamp_utc\n"+
			"s1,active,2024-01-25 10:00:00 UTC\n"+
			"s1,bogus,2024-01-25 10:05:00 UTC\n",
		"store_id,dayOfWeek,start_time_local,end_time_local\n"+
			"s1,0,09:00:00,17:00:00\n",
		"store_id,timezone_str\n"+
			"s1,America/New_York\n",
	)
	ds, err := ing.Run(ctx, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c := ds.Counts(); c.Observations != 1 || c.Skipped != 1 {
		t.Fatalf("counts=%+v", c)
	}
	if _, ok, _ := store.Timezone(ctx, "old"); ok {
		t.Fatalf("stale timezone survived ingest")
	}
	if tz, ok, _ := store.Timezone(ctx, "s1"); !ok || tz != "America/New_York" {
		t.Fatalf("timezone=%q ok=%v", tz, ok)
	}
	if got := testutil.ToFloat64(m.IngestRows.WithLabelValues(StatusFile, "skipped")); got != 1 {
		t.Fatalf("skipped metric=%v", got)
	}
}

func TestIngester_LogsSkippedRows(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ing := New(memory.New(), zap.New(core), nil)

	dir := writeDir(t,
		"store_id,status,timestamp_utc\n"+
			"s1,active,2024-01-25 10:00:00 UTC\n"+
			"s1,active,garbage\n",
		"store_id,dayOfWeek,start_time_local,end_time_local\n",
		"store_id,timezone_str\n",
	)
	if _, err := ing.Run(context.Background(), dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	skipped := logs.FilterMessage("ingest_row_skipped").All()
	if len(skipped) != 1 {
		t.Fatalf("want 1 skipped-row log, got %d", len(skipped))
	}
	f := skipped[0].ContextMap()
	if f["file"] != StatusFile || f["line"] != int64(3) {
		t.Fatalf("fields=%v", f)
	}
	if logs.FilterMessage("ingest_done").Len() != 1 {
		t.Fatalf("missing ingest_done")
	}
}
