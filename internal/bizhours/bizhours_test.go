package bizhours

import (
	"reflect"
	"testing"
	"time"

	"github.com/hamed0406/storemonitor/internal/domain"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s unavailable: %v", name, err)
	}
	return loc
}

func rule(day int, start, end string) domain.BusinessHoursRule {
	return domain.BusinessHoursRule{
		StoreID:    "s1",
		DayOfWeek:  day,
		StartLocal: domain.MustTimeOfDay(start),
		EndLocal:   domain.MustTimeOfDay(end),
	}
}

func utcAt(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestResolveLocation_FallsBackToChicago(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	chi := mustLoad(t, "America/Chicago")

	if got := ResolveLocation("America/Los_Angeles"); got.String() != la.String() {
		t.Fatalf("want %s got %s", la, got)
	}
	if got := ResolveLocation("Invalid/Timezone"); got.String() != chi.String() {
		t.Fatalf("invalid zone should fall back to %s, got %s", chi, got)
	}
	if got := ResolveLocation(""); got.String() != chi.String() {
		t.Fatalf("empty zone should fall back to %s, got %s", chi, got)
	}
}

func TestExpand_SameDayNewYorkSummer(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	r := rule(1, "09:00", "17:00")

	got := Expand(&r, domain.Date{Year: 2023, Month: time.August, Day: 29}, ny)
	want := []domain.Interval{{Start: utcAt(2023, 8, 29, 13, 0), End: utcAt(2023, 8, 29, 21, 0)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestExpand_OvernightChicago(t *testing.T) {
	chi := mustLoad(t, "America/Chicago")
	r := rule(1, "22:00", "04:00")

	got := Expand(&r, domain.Date{Year: 2023, Month: time.August, Day: 29}, chi)
	if len(got) != 2 {
		t.Fatalf("want 2 intervals, got %d: %+v", len(got), got)
	}
	if !got[0].Start.Equal(utcAt(2023, 8, 30, 3, 0)) {
		t.Fatalf("first start=%v", got[0].Start)
	}
	if !got[1].End.Equal(utcAt(2023, 8, 30, 9, 0)) {
		t.Fatalf("second end=%v", got[1].End)
	}
	if !got[0].End.Equal(got[1].Start) {
		t.Fatalf("overnight halves not contiguous: %v vs %v", got[0].End, got[1].Start)
	}
	if total := got[0].Duration() + got[1].Duration(); total != 6*time.Hour {
		t.Fatalf("overnight span=%v want 6h", total)
	}
}

func TestExpand_OvernightAcrossDSTEnd(t *testing.T) {
	chi := mustLoad(t, "America/Chicago")
	// Clocks fall back at 02:00 local on 2023-11-05, so this night is 7 hours long.
	r := rule(5, "22:00", "04:00")

	got := Expand(&r, domain.Date{Year: 2023, Month: time.November, Day: 4}, chi)
	if len(got) != 2 || !got[0].End.Equal(got[1].Start) {
		t.Fatalf("halves not contiguous: %+v", got)
	}
	if got[0].Duration() != 2*time.Hour || got[1].Duration() != 5*time.Hour {
		t.Fatalf("unexpected split across DST: %v + %v", got[0].Duration(), got[1].Duration())
	}
}

func TestExpand_NilRuleIsWholeLocalDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	got := Expand(nil, domain.Date{Year: 2023, Month: time.January, Day: 1}, ny)
	want := []domain.Interval{{Start: utcAt(2023, 1, 1, 5, 0), End: utcAt(2023, 1, 2, 5, 0)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}

	// Spring-forward day is 23 hours long.
	got = Expand(nil, domain.Date{Year: 2023, Month: time.March, Day: 12}, ny)
	if len(got) != 1 || got[0].Duration() != 23*time.Hour {
		t.Fatalf("spring forward day: %+v", got)
	}
}

func TestExpand_AlmostFullDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	r := rule(6, "00:00", "23:59:59")

	got := Expand(&r, domain.Date{Year: 2023, Month: time.January, Day: 1}, ny)
	if len(got) != 1 || got[0].Duration() < 24*time.Hour-time.Second {
		t.Fatalf("expected ~24h interval, got %+v", got)
	}
}

func TestExpand_EqualStartEndIsEmpty(t *testing.T) {
	r := rule(0, "09:00", "09:00")
	if got := Expand(&r, domain.Date{Year: 2023, Month: time.January, Day: 2}, time.UTC); len(got) != 0 {
		t.Fatalf("zero-length rule should yield nothing, got %+v", got)
	}
}

func TestForWindow_NoRulesIsWholeWindow(t *testing.T) {
	start, end := utcAt(2023, 1, 25, 17, 0), utcAt(2023, 1, 25, 18, 0)
	got := ForWindow(nil, time.UTC, start, end)
	want := []domain.Interval{{Start: start, End: end}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestForWindow_SpansTwoLocalDates(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	rules := []domain.BusinessHoursRule{rule(1, "10:00", "20:00"), rule(2, "10:00", "20:00")}

	// Tue 2023-01-24 13:00 EST .. Wed 2023-01-25 13:00 EST
	start, end := utcAt(2023, 1, 24, 18, 0), utcAt(2023, 1, 25, 18, 0)
	got := ForWindow(rules, ny, start, end)
	want := []domain.Interval{
		{Start: start, End: utcAt(2023, 1, 25, 1, 0)},
		{Start: utcAt(2023, 1, 25, 15, 0), End: end},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got  %+v\nwant %+v", got, want)
	}
}

func TestForWindow_OvernightSpillFromPreviousDate(t *testing.T) {
	rules := []domain.BusinessHoursRule{rule(1, "22:00", "04:00")} // Tuesday night
	// Wednesday 2023-01-25 01:00..03:00 UTC lies inside Tuesday's shift.
	start, end := utcAt(2023, 1, 25, 1, 0), utcAt(2023, 1, 25, 3, 0)
	for d := 0; d < 7; d++ {
		if d != 1 {
			rules = append(rules, rule(d, "09:00", "17:00"))
		}
	}
	got := ForWindow(rules, time.UTC, start, end)
	want := []domain.Interval{{Start: start, End: end}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestForWindow_MergesOverlapsWithMissingWeekday(t *testing.T) {
	// Tuesday runs overnight into Wednesday, which has no rule (whole day open).
	rules := []domain.BusinessHoursRule{rule(1, "22:00", "04:00")}
	start, end := utcAt(2023, 1, 24, 0, 0), utcAt(2023, 1, 26, 0, 0)

	got := ForWindow(rules, time.UTC, start, end)
	var total time.Duration
	for i, iv := range got {
		total += iv.Duration()
		if i > 0 && !got[i-1].End.Before(iv.Start) {
			t.Fatalf("intervals %d and %d overlap or touch: %+v", i-1, i, got)
		}
	}
	// Tuesday 22:00-24:00 plus all of Wednesday.
	if total != 26*time.Hour {
		t.Fatalf("total=%v want 26h (%+v)", total, got)
	}
}

func TestMerge(t *testing.T) {
	a := utcAt(2023, 1, 1, 0, 0)
	h := func(n int) time.Time { return a.Add(time.Duration(n) * time.Hour) }
	got := Merge([]domain.Interval{
		{Start: h(5), End: h(6)},
		{Start: h(0), End: h(2)},
		{Start: h(2), End: h(3)},
		{Start: h(1), End: h(2)},
	})
	want := []domain.Interval{{Start: h(0), End: h(3)}, {Start: h(5), End: h(6)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLookupLocation(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"America/Denver", true},
		{"UTC", true},
		{"", false},
		{"Invalid/Timezone", false},
	}
	for _, c := range cases {
		loc, ok := LookupLocation(c.name)
		if ok != c.ok || (ok && loc.String() != c.name) {
			t.Fatalf("LookupLocation(%q)=%v,%v", c.name, loc, ok)
		}
	}
}
