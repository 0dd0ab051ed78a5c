package domain

import (
	"fmt"
	"strings"
	"time"
)

type StoreID string

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus accepts the two poll statuses, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// StatusObservation is one poll of a store. Seq is the ingestion order and
// breaks ties between polls that share a timestamp.
type StatusObservation struct {
	StoreID   StoreID   `json:"store_id"`
	Timestamp time.Time `json:"timestamp_utc"`
	Status    Status    `json:"status"`
	Seq       int64     `json:"seq"`
}

// StatusInterval is a half-open [Start, End) span with a single status.
type StatusInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status Status    `json:"status"`
}

func (s StatusInterval) Duration() time.Duration { return s.End.Sub(s.Start) }

// Interval is an absolute UTC span.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlap returns how long [aStart, aEnd) and [bStart, bEnd) share, or 0.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !start.Before(end) {
		return 0
	}
	return end.Sub(start)
}

const DefaultTimezone = "America/Chicago"

type StoreTimezone struct {
	StoreID  StoreID `json:"store_id"`
	Timezone string  `json:"timezone_str"`
}
