package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
	Nanos  int
}

// ParseTimeOfDay accepts "15:04", "15:04:05" and "15:04:05.999999".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	var t TimeOfDay
	var err error
	if t.Hour, err = strconv.Atoi(parts[0]); err != nil || t.Hour < 0 || t.Hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	if t.Minute, err = strconv.Atoi(parts[1]); err != nil || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, frac, _ := strings.Cut(parts[2], ".")
		if t.Second, err = strconv.Atoi(sec); err != nil || t.Second < 0 || t.Second > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid second in %q", s)
		}
		if frac != "" {
			if len(frac) > 9 {
				frac = frac[:9]
			}
			n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
			if err != nil {
				return TimeOfDay{}, fmt.Errorf("invalid fraction in %q", s)
			}
			t.Nanos = n
		}
	}
	return t, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// SinceMidnight is the nominal offset from 00:00, ignoring DST.
func (t TimeOfDay) SinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanos)
}

// TimeOfDayFromDuration is the inverse of SinceMidnight for d in [0, 24h).
func TimeOfDayFromDuration(d time.Duration) TimeOfDay {
	return TimeOfDay{
		Hour:   int(d / time.Hour),
		Minute: int(d % time.Hour / time.Minute),
		Second: int(d % time.Minute / time.Second),
		Nanos:  int(d % time.Second),
	}
}

func (t TimeOfDay) Compare(o TimeOfDay) int {
	a, b := t.SinceMidnight(), o.SinceMidnight()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// On places t on the given civil date in loc, resolving the zone offset
// active at that moment.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, t.Nanos, loc)
}

func (t TimeOfDay) String() string {
	if t.Nanos != 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour, t.Minute, t.Second, t.Nanos/1000)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) After(o Date) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Day > o.Day
}

// Weekday returns 0 for Monday through 6 for Sunday.
func (d Date) Weekday() int {
	wd := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
	return (int(wd) + 6) % 7
}

// Midnight is the first instant of d in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// BusinessHoursRule is a store's opening time on one weekday (0=Monday).
// EndLocal before StartLocal means the store closes after local midnight.
type BusinessHoursRule struct {
	StoreID    StoreID   `json:"store_id"`
	DayOfWeek  int       `json:"day_of_week"`
	StartLocal TimeOfDay `json:"start_time_local"`
	EndLocal   TimeOfDay `json:"end_time_local"`
}

func (r BusinessHoursRule) Overnight() bool {
	return r.StartLocal.Compare(r.EndLocal) > 0
}
