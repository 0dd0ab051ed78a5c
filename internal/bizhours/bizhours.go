// Package bizhours expands weekly local opening hours into UTC intervals.
package bizhours

import (
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/hamed0406/storemonitor/internal/domain"
)

// LookupLocation loads an IANA zone; ok is false for empty or unknown names.
func LookupLocation(name string) (*time.Location, bool) {
	if name == "" {
		return nil, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	return loc, true
}

// ResolveLocation loads an IANA zone, falling back to the default store
// timezone and then UTC. It never fails.
func ResolveLocation(name string) *time.Location {
	if loc, ok := LookupLocation(name); ok {
		return loc
	}
	if loc, ok := LookupLocation(domain.DefaultTimezone); ok {
		return loc
	}
	return time.UTC
}

// Expand returns the UTC opening intervals that start on the local date d.
// A nil rule means open for the whole local day. Overnight rules yield two
// intervals split at local midnight, each resolved with its own offset.
func Expand(rule *domain.BusinessHoursRule, d domain.Date, loc *time.Location) []domain.Interval {
	nextMidnight := d.AddDays(1).Midnight(loc)
	if rule == nil {
		return utc(domain.Interval{Start: d.Midnight(loc), End: nextMidnight})
	}

	start := rule.StartLocal.On(d, loc)
	if !rule.Overnight() {
		return utc(domain.Interval{Start: start, End: rule.EndLocal.On(d, loc)})
	}
	return utc(
		domain.Interval{Start: start, End: nextMidnight},
		domain.Interval{Start: nextMidnight, End: rule.EndLocal.On(d.AddDays(1), loc)},
	)
}

func utc(ivs ...domain.Interval) []domain.Interval {
	out := make([]domain.Interval, 0, len(ivs))
	for _, iv := range ivs {
		iv.Start, iv.End = iv.Start.UTC(), iv.End.UTC()
		if iv.Start.Before(iv.End) {
			out = append(out, iv)
		}
	}
	return out
}

// ForWindow returns the store's opening intervals inside [start, end),
// clipped to the window, sorted and with overlaps merged. Without any
// rules the store is open for the whole window.
func ForWindow(rules []domain.BusinessHoursRule, loc *time.Location, start, end time.Time) []domain.Interval {
	if !start.Before(end) {
		return nil
	}
	if len(rules) == 0 {
		return []domain.Interval{{Start: start.UTC(), End: end.UTC()}}
	}

	byDay := make(map[int]*domain.BusinessHoursRule, len(rules))
	for i := range rules {
		byDay[rules[i].DayOfWeek] = &rules[i]
	}

	// The day before the window may run past local midnight into it.
	first := domain.DateOf(start.In(loc)).AddDays(-1)
	last := domain.DateOf(end.In(loc))

	var all []domain.Interval
	for d := first; !d.After(last); d = d.AddDays(1) {
		for _, iv := range Expand(byDay[d.Weekday()], d, loc) {
			if iv.Start.Before(start) {
				iv.Start = start
			}
			if iv.End.After(end) {
				iv.End = end
			}
			if iv.Start.Before(iv.End) {
				all = append(all, domain.Interval{Start: iv.Start.UTC(), End: iv.End.UTC()})
			}
		}
	}
	return Merge(all)
}

// Merge sorts intervals and joins those that overlap or touch.
func Merge(ivs []domain.Interval) []domain.Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]domain.Interval, len(ivs))
	copy(sorted, ivs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []domain.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		cur := &out[len(out)-1]
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
