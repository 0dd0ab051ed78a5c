package domain

import (
	"math"
	"time"
)

type WindowName string

const (
	WindowLastHour WindowName = "last_hour"
	WindowLastDay  WindowName = "last_day"
	WindowLastWeek WindowName = "last_week"
)

type Unit string

const (
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
)

// WindowResult holds fractional uptime and downtime for one trailing window.
type WindowResult struct {
	StoreID  StoreID    `json:"store_id"`
	Window   WindowName `json:"window"`
	Uptime   float64    `json:"uptime"`
	Downtime float64    `json:"downtime"`
	Unit     Unit       `json:"unit"`
}

type StoreReport struct {
	StoreID StoreID        `json:"store_id"`
	Now     time.Time      `json:"reference_instant"`
	Windows []WindowResult `json:"windows"`
}

// Window returns the named result, or a zero value with ok=false.
func (r StoreReport) Window(name WindowName) (WindowResult, bool) {
	for _, w := range r.Windows {
		if w.Window == name {
			return w, true
		}
	}
	return WindowResult{}, false
}

type ReportStatus string

const (
	ReportRunning  ReportStatus = "Running"
	ReportComplete ReportStatus = "Complete"
	ReportError    ReportStatus = "Error"
)

type Report struct {
	ID          string       `json:"report_id"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ReportRow is the persisted shape of a StoreReport. Last-hour values are
// whole minutes.
type ReportRow struct {
	ReportID                string  `json:"report_id"`
	StoreID                 StoreID `json:"store_id"`
	UptimeLastHourMinutes   int     `json:"uptime_last_hour"`
	UptimeLastDayHours      float64 `json:"uptime_last_day"`
	UptimeLastWeekHours     float64 `json:"uptime_last_week"`
	DowntimeLastHourMinutes int     `json:"downtime_last_hour"`
	DowntimeLastDayHours    float64 `json:"downtime_last_day"`
	DowntimeLastWeekHours   float64 `json:"downtime_last_week"`
}

func NewReportRow(reportID string, r StoreReport) ReportRow {
	row := ReportRow{ReportID: reportID, StoreID: r.StoreID}
	if w, ok := r.Window(WindowLastHour); ok {
		row.UptimeLastHourMinutes = roundHalfEven(w.Uptime)
		row.DowntimeLastHourMinutes = roundHalfEven(w.Downtime)
	}
	if w, ok := r.Window(WindowLastDay); ok {
		row.UptimeLastDayHours = w.Uptime
		row.DowntimeLastDayHours = w.Downtime
	}
	if w, ok := r.Window(WindowLastWeek); ok {
		row.UptimeLastWeekHours = w.Uptime
		row.DowntimeLastWeekHours = w.Downtime
	}
	return row
}

func roundHalfEven(v float64) int { return int(math.RoundToEven(v)) }
