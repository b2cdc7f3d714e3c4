// Package metrics provides Prometheus metrics for recognition, dispatch and storage.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all Prometheus metrics of the attendance service.
type Metrics struct {
	Frames          *prometheus.CounterVec
	Events          *prometheus.CounterVec
	SinkErrors      prometheus.Counter
	AnnounceErrors  prometheus.Counter
	DroppedItems    prometheus.Counter
	QueueDepth      prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	StoreRecords    prometheus.Gauge
	MatchSimilarity prometheus.Histogram
	EnrolledVectors prometheus.Counter
	registry        prometheus.Registerer
}

// New creates the metrics and registers them with registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register attendance metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_frames_total",
		Help: "Total number of processed frames by outcome (no_face, no_match, matched)",
	}, []string{"outcome"})

	m.Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_events_total",
		Help: "Total number of emitted attendance events by mode",
	}, []string{"mode"})

	m.SinkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sink_errors_total",
		Help: "Total number of attendance events the sink failed to record",
	})

	m.AnnounceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_announce_errors_total",
		Help: "Total number of failed announcements",
	})

	m.DroppedItems = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_dispatch_dropped_total",
		Help: "Total number of queued events discarded on session stop",
	})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_dispatch_queue_depth",
		Help: "Number of events waiting for delivery across all sessions",
	})

	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_active_sessions",
		Help: "Number of running recognition sessions",
	})

	m.StoreRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_store_records",
		Help: "Number of enrolled face records in the current snapshot",
	})

	m.MatchSimilarity = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_match_similarity",
		Help:    "Cosine similarity of accepted matches",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.EnrolledVectors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_enrolled_vectors_total",
		Help: "Total number of vectors written by enrollments",
	})
}

// ObserveFrame counts a processed frame by outcome.
func (m *Metrics) ObserveFrame(outcome string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(outcome).Inc()
}

// ObserveMatch records the similarity of an accepted match.
func (m *Metrics) ObserveMatch(similarity float64) {
	if m == nil {
		return
	}
	m.MatchSimilarity.Observe(similarity)
}

// IncrementEvents counts an emitted event.
func (m *Metrics) IncrementEvents(mode string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(mode).Inc()
}

// IncrementSinkErrors counts a failed sink write.
func (m *Metrics) IncrementSinkErrors() {
	if m == nil {
		return
	}
	m.SinkErrors.Inc()
}

// IncrementAnnounceErrors counts a failed announcement.
func (m *Metrics) IncrementAnnounceErrors() {
	if m == nil {
		return
	}
	m.AnnounceErrors.Inc()
}

// AddDropped counts queued items discarded on stop.
func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedItems.Add(float64(n))
}

// AddQueueDepth adjusts the dispatch queue gauge by delta.
func (m *Metrics) AddQueueDepth(delta int) {
	if m == nil {
		return
	}
	m.QueueDepth.Add(float64(delta))
}

// AddActiveSessions adjusts the running sessions gauge by delta.
func (m *Metrics) AddActiveSessions(delta int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(float64(delta))
}

// SetStoreRecords sets the current snapshot size.
func (m *Metrics) SetStoreRecords(n int) {
	if m == nil {
		return
	}
	m.StoreRecords.Set(float64(n))
}

// AddEnrolled counts vectors written by an enrollment.
func (m *Metrics) AddEnrolled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EnrolledVectors.Add(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Frames.Describe(ch)
	m.Events.Describe(ch)
	m.SinkErrors.Describe(ch)
	m.AnnounceErrors.Describe(ch)
	m.DroppedItems.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.ActiveSessions.Describe(ch)
	m.StoreRecords.Describe(ch)
	m.MatchSimilarity.Describe(ch)
	m.EnrolledVectors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Frames.Collect(ch)
	m.Events.Collect(ch)
	m.SinkErrors.Collect(ch)
	m.AnnounceErrors.Collect(ch)
	m.DroppedItems.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.ActiveSessions.Collect(ch)
	m.StoreRecords.Collect(ch)
	m.MatchSimilarity.Collect(ch)
	m.EnrolledVectors.Collect(ch)
}
