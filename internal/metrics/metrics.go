// Package metrics provides Prometheus metrics for live and batch
// transcription.
package metrics

import (
	"github.com/koscakluka/livescribe/core/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livescribe"

const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	SessionsFailed prometheus.Counter

	// Audio metrics
	AudioFramesSent prometheus.Counter
	AudioBytesSent  prometheus.Counter

	// Transcript metrics
	TranscriptFragments  prometheus.Counter
	TranscriptBoundaries prometheus.Counter

	// Batch metrics
	BatchUploads *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of streaming sessions opened",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open streaming sessions",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of streaming sessions that failed to open or broke",
		}),

		AudioFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Total PCM frames written to streaming sessions",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total PCM bytes written to streaming sessions",
		}),

		TranscriptFragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_fragments_total",
			Help:      "Total transcript fragments received",
		}),
		TranscriptBoundaries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_boundaries_total",
			Help:      "Total segment boundaries received",
		}),

		BatchUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_uploads_total",
			Help:      "Total file transcriptions by outcome",
		}, []string{"outcome"}),
	}
}

// Observe updates the metrics for one session event.
func (m *Metrics) Observe(event events.Event) {
	if m == nil {
		return
	}

	switch e := event.(type) {
	case events.SessionOpened:
		m.SessionsTotal.Inc()
		m.SessionsActive.Inc()
	case events.SessionClosed:
		m.SessionsActive.Dec()
	case events.SessionFailed:
		m.SessionsFailed.Inc()
	case events.AudioFrameSent:
		m.AudioFramesSent.Inc()
		m.AudioBytesSent.Add(float64(e.Bytes))
	case events.TranscriptFragment:
		m.TranscriptFragments.Inc()
	case events.TranscriptBoundary:
		m.TranscriptBoundaries.Inc()
	}
}

// ObserveBatch records the outcome of one file transcription.
func (m *Metrics) ObserveBatch(outcome string) {
	if m == nil {
		return
	}
	m.BatchUploads.WithLabelValues(outcome).Inc()
}
