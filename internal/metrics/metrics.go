package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles storemonitor metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReportsTotal   *prometheus.CounterVec
	ReportDuration prometheus.Histogram
	StoreCompute   prometheus.Histogram
	IngestRows     *prometheus.CounterVec
	AlertsTotal    *prometheus.CounterVec
}

// New constructs the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storemonitor_reports_total",
				Help: "Total generated reports by final status",
			},
			[]string{"status"},
		),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storemonitor_report_duration_seconds",
			Help:    "Report generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		StoreCompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storemonitor_store_compute_seconds",
			Help:    "Per-store uptime computation duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		IngestRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storemonitor_ingest_rows_total",
				Help: "CSV rows seen during ingestion by file and result",
			},
			[]string{"file", "result"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storemonitor_alerts_total",
				Help: "Downtime notifications sent by kind",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.ReportsTotal,
			m.ReportDuration,
			m.StoreCompute,
			m.IngestRows,
			m.AlertsTotal,
		)
	}
	return m
}

func (m *Metrics) ReportFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(status).Inc()
	m.ReportDuration.Observe(d.Seconds())
}

func (m *Metrics) StoreComputed(d time.Duration) {
	if m == nil {
		return
	}
	m.StoreCompute.Observe(d.Seconds())
}

// IngestRowsAdd counts n rows of file with result "loaded" or "skipped".
func (m *Metrics) IngestRowsAdd(file, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.IngestRows.WithLabelValues(file, result).Add(float64(n))
}

func (m *Metrics) AlertSent(kind string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind).Inc()
}
