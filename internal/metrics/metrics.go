// Package metrics provides Prometheus metrics for the whisper bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whisperbridge"

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Context metrics
	ContextInits *prometheus.CounterVec
	ContextsLive prometheus.Gauge

	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	TranscribedSamples    prometheus.Counter
	CallbackEvents        *prometheus.CounterVec

	// Loader metrics
	LoaderBytes      *prometheus.CounterVec
	LoaderShortReads prometheus.Counter

	// Engine log lines routed through the log sink
	EngineLogLines *prometheus.CounterVec
}

// Default is the process-wide metrics instance registered with the default
// Prometheus registry.
var Default = New(prometheus.DefaultRegisterer)

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContextInits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_inits_total",
			Help:      "Native context initialisations by source and result",
		}, []string{"source", "result"}),
		ContextsLive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_live",
			Help:      "Number of native contexts not yet freed",
		}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription calls by result",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Wall time of blocking transcription calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		TranscribedSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcribed_samples_total",
			Help:      "PCM samples passed to the engine",
		}),
		CallbackEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_events_total",
			Help:      "Engine callback invocations relayed to callers",
		}, []string{"kind"}),

		LoaderBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_bytes_total",
			Help:      "Model bytes consumed through loader adapters",
		}, []string{"source"}),
		LoaderShortReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_short_reads_total",
			Help:      "Stream loader reads that returned fewer bytes than requested",
		}),

		EngineLogLines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_log_lines_total",
			Help:      "Engine diagnostic lines by level",
		}, []string{"level"}),
	}
}

// RecordContextInit records an initialisation attempt.
func (m *Metrics) RecordContextInit(source string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ContextInits.WithLabelValues(source, result).Inc()
	if ok {
		m.ContextsLive.Inc()
	}
}

// RecordContextFree records a released context.
func (m *Metrics) RecordContextFree() {
	m.ContextsLive.Dec()
}

// RecordTranscription records a finished transcription call.
func (m *Metrics) RecordTranscription(samples int, durationSeconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Transcriptions.WithLabelValues(result).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
	m.TranscribedSamples.Add(float64(samples))
}

// RecordCallbacks records relayed callback invocations of one kind.
func (m *Metrics) RecordCallbacks(kind string, n int) {
	if n <= 0 {
		return
	}
	m.CallbackEvents.WithLabelValues(kind).Add(float64(n))
}

// RecordLoaderBytes records model bytes read by a loader.
func (m *Metrics) RecordLoaderBytes(source string, n int64) {
	if n <= 0 {
		return
	}
	m.LoaderBytes.WithLabelValues(source).Add(float64(n))
}

// RecordShortRead records a stream loader short read.
func (m *Metrics) RecordShortRead() {
	m.LoaderShortReads.Inc()
}

// RecordEngineLog records one engine diagnostic line.
func (m *Metrics) RecordEngineLog(level string) {
	m.EngineLogLines.WithLabelValues(level).Inc()
}
