package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scan counters on a dedicated registry so a run can dump
// exactly its own numbers to a node_exporter textfile.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal      *prometheus.CounterVec
	FragmentsSkipped *prometheus.CounterVec
	FilesScanned     prometheus.Counter
	BytesRead        prometheus.Counter
	ReaderFallbacks  prometheus.Counter
	RiskScore        prometheus.Gauge
	FileScanDuration prometheus.Histogram
}

// New registers every scan metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelens_events_total",
				Help: "Total number of events parsed, by watched event id",
			},
			[]string{"event_id"},
		),

		FragmentsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelens_fragments_skipped_total",
				Help: "Total number of event candidates skipped during normalization",
			},
			[]string{"reason"},
		),

		FilesScanned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracelens_files_scanned_total",
				Help: "Total number of input files scanned",
			},
		),

		BytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracelens_bytes_read_total",
				Help: "Total bytes read from input files",
			},
		),

		ReaderFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracelens_reader_fallbacks_total",
				Help: "Number of files where pull parsing fell back to fragment scanning",
			},
		),

		RiskScore: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracelens_risk_score",
				Help: "Composite risk score of the last scan",
			},
		),

		FileScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracelens_file_scan_duration_seconds",
				Help:    "Duration of scanning one input file in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ObserveEvent counts one parsed event. Unwatched ids share the "other" label
// to keep cardinality bounded.
func (m *Metrics) ObserveEvent(eventID int, watched bool) {
	label := "other"
	if watched {
		label = strconv.Itoa(eventID)
	}
	m.EventsTotal.WithLabelValues(label).Inc()
}

// ObserveSkip counts one skipped candidate.
func (m *Metrics) ObserveSkip(reason string) {
	m.FragmentsSkipped.WithLabelValues(reason).Inc()
}

// WriteTextfile writes all metrics in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
