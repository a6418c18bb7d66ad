// Package prometheus implements the instrument sets declared by the
// component packages, built on the process registry in pkg/metrics.
//
// Importing this package registers its constructors; nothing here is
// called directly.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/metrics"
)

func init() {
	metrics.RegisterIngestMetricsConstructor(NewIngestMetrics)
}

// ingestMetrics is the Prometheus implementation of ingest.Metrics.
type ingestMetrics struct {
	events         *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	batchSize      prometheus.Histogram
	gaps           prometheus.Counter
	gapWidth       prometheus.Histogram
	deadLetters    prometheus.Counter
}

// NewIngestMetrics creates a Prometheus-backed ingest.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewIngestMetrics() ingest.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ingestMetrics{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "eldcore_ingest_events_total",
				Help: "Total number of events by type and terminal outcome",
			},
			[]string{"event_type", "outcome"}, // outcome: "accepted", "replayed", "rejected"
		),
		submitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "eldcore_ingest_submit_duration_milliseconds",
				Help: "Duration of single-event submissions in milliseconds",
				Buckets: []float64{
					1,    // 1ms - in-memory sqlite
					5,    // 5ms
					10,   // 10ms - typical postgres commit
					25,   // 25ms
					50,   // 50ms
					100,  // 100ms - includes a CAS retry
					250,  // 250ms
					1000, // 1s - retry budget territory
					5000, // 5s
				},
			},
			[]string{"outcome"},
		),
		batchSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "eldcore_ingest_batch_size",
				Help: "Distribution of events per batch submission",
				Buckets: []float64{
					1,   // single-event drains
					5,   // short offline window
					10,  //
					25,  //
					50,  //
					100, // batch endpoint cap
					250, //
					500, // sync endpoint cap
				},
			},
		),
		gaps: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "eldcore_sequence_gaps_total",
				Help: "Total number of tolerated sequence ID gaps",
			},
		),
		gapWidth: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "eldcore_sequence_gap_width",
				Help: "Distribution of skipped IDs per tolerated gap",
				Buckets: []float64{
					1,    // single dropped event
					2,    //
					5,    //
					10,   //
					50,   //
					100,  // large-gap warning threshold territory
					1000, // device counter trouble
				},
			},
		),
		deadLetters: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "eldcore_dlq_parked_total",
				Help: "Total number of event payloads parked on the dead letter queue",
			},
		),
	}
}

func (m *ingestMetrics) ObserveEvent(eventType eld.EventType, outcome string) {
	m.events.WithLabelValues(strconv.Itoa(int(eventType)), outcome).Inc()
}

func (m *ingestMetrics) ObserveSubmitDuration(outcome string, duration time.Duration) {
	m.submitDuration.WithLabelValues(outcome).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *ingestMetrics) ObserveBatch(total, accepted, rejected int) {
	m.batchSize.Observe(float64(total))
}

func (m *ingestMetrics) ObserveGap(width int) {
	m.gaps.Inc()
	m.gapWidth.Observe(float64(width))
}

func (m *ingestMetrics) ObserveDeadLetter() {
	m.deadLetters.Inc()
}
