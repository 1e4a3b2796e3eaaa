// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcript_chat"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsActive prometheus.Gauge
	SessionResets  prometheus.Counter

	// Single-flight cache metrics
	CacheHits        *prometheus.CounterVec
	StaleIndexHits   prometheus.Counter
	ResultsDiscarded *prometheus.CounterVec

	// Pipeline metrics
	Transcriptions       *prometheus.CounterVec
	TranscriptionLatency prometheus.Histogram
	IndexBuilds          *prometheus.CounterVec
	IndexBuildLatency    prometheus.Histogram
	ChunksIndexed        prometheus.Counter

	// Query metrics
	Queries            *prometheus.CounterVec
	QueriesRejected    *prometheus.CounterVec
	QALatency          prometheus.Histogram
	CharactersStreamed prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Embedding cache metrics
	EmbeddingCache *prometheus.CounterVec

	// Transport metrics
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	StreamsActive  *prometheus.GaugeVec
	StreamDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg leaves the metrics unregistered, which tests use for isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live conversation sessions",
		}),
		SessionResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Total number of session resets",
		}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Ensure calls answered from the session cache",
		}, []string{"op"}),
		StaleIndexHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_index_hits_total",
			Help:      "Index requests for a different media served by the existing session index",
		}),
		ResultsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_discarded_total",
			Help:      "Collaborator results dropped because the session was reset meanwhile",
		}, []string{"op"}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "ASR collaborator invocations",
		}, []string{"result"}),
		TranscriptionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Media fetch and transcription latency in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		IndexBuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builder invocations",
		}, []string{"result"}),
		IndexBuildLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_latency_seconds",
			Help:      "Chunking and index build latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ChunksIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Total number of time chunks indexed",
		}),

		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Accepted queries by outcome",
		}, []string{"result"}),
		QueriesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_rejected_total",
			Help:      "Queries rejected before reaching the QA collaborator",
		}, []string{"reason"}),
		QALatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "qa_latency_seconds",
			Help:      "QA collaborator latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		CharactersStreamed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "characters_streamed_total",
			Help:      "Answer characters delivered to consumers",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		EmbeddingCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by outcome",
		}, []string{"outcome"}),

		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Unary API requests by transport, method and status code",
		}, []string{"transport", "method", "code"}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Unary API request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"transport", "method"}),
		StreamsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "answer_streams_active",
			Help:      "Answer streams currently open",
		}, []string{"transport"}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_stream_duration_seconds",
			Help:      "Answer stream duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"transport", "result"}),
	}
}

// RecordSessionOpened records a new session.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a session being deleted.
func (m *Metrics) RecordSessionClosed() {
	m.SessionsActive.Dec()
}

// RecordReset records a session reset.
func (m *Metrics) RecordReset() {
	m.SessionResets.Inc()
}

// RecordCacheHit records an ensure call served from cache.
func (m *Metrics) RecordCacheHit(op string) {
	m.CacheHits.WithLabelValues(op).Inc()
}

// RecordStaleIndex records a request for another media served by the existing index.
func (m *Metrics) RecordStaleIndex() {
	m.StaleIndexHits.Inc()
}

// RecordDiscarded records a result dropped after a reset.
func (m *Metrics) RecordDiscarded(op string) {
	m.ResultsDiscarded.WithLabelValues(op).Inc()
}

// RecordTranscription records an ASR invocation.
func (m *Metrics) RecordTranscription(err error, latencySeconds float64) {
	m.Transcriptions.WithLabelValues(result(err)).Inc()
	m.TranscriptionLatency.Observe(latencySeconds)
}

// RecordIndexBuild records an index build.
func (m *Metrics) RecordIndexBuild(err error, chunks int, latencySeconds float64) {
	m.IndexBuilds.WithLabelValues(result(err)).Inc()
	m.IndexBuildLatency.Observe(latencySeconds)
	if err == nil {
		m.ChunksIndexed.Add(float64(chunks))
	}
}

// RecordQuery records a query that reached the QA collaborator.
func (m *Metrics) RecordQuery(err error, latencySeconds float64) {
	m.Queries.WithLabelValues(result(err)).Inc()
	m.QALatency.Observe(latencySeconds)
}

// RecordRejected records a query rejected by validation or the state machine.
func (m *Metrics) RecordRejected(reason string) {
	m.QueriesRejected.WithLabelValues(reason).Inc()
}

// RecordCharacter records a streamed answer character.
func (m *Metrics) RecordCharacter() {
	m.CharactersStreamed.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordEmbeddingCache records an embedding cache lookup ("hit", "miss", "error").
func (m *Metrics) RecordEmbeddingCache(outcome string) {
	m.EmbeddingCache.WithLabelValues(outcome).Inc()
}

// RecordRequest records a unary request on transport ("grpc", "http").
func (m *Metrics) RecordRequest(transport, method, code string, latencySeconds float64) {
	m.Requests.WithLabelValues(transport, method, code).Inc()
	m.RequestLatency.WithLabelValues(transport, method).Observe(latencySeconds)
}

// RecordStreamStart records an answer stream being opened.
func (m *Metrics) RecordStreamStart(transport string) {
	m.StreamsActive.WithLabelValues(transport).Inc()
}

// RecordStreamEnd records an answer stream closing.
func (m *Metrics) RecordStreamEnd(transport string, err error, durationSeconds float64) {
	m.StreamsActive.WithLabelValues(transport).Dec()
	m.StreamDuration.WithLabelValues(transport, result(err)).Observe(durationSeconds)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
