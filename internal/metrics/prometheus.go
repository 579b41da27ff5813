package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the voice ordering service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram
	MalformedEvents prometheus.Counter

	// Playout metrics
	FramesSent     prometheus.Counter
	PlaybackAborts prometheus.Counter

	// Turn metrics
	Transcripts    *prometheus.CounterVec
	TurnDuration   prometheus.Histogram
	ProviderErrors *prometheus.CounterVec

	// Order metrics
	OrdersSubmitted *prometheus.CounterVec
}

// New creates and registers all metrics on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of active media stream sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_opened_total",
			Help: "Total number of media stream sessions opened",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_closed_total",
			Help: "Total number of media stream sessions closed",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Duration of media stream sessions",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		MalformedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_malformed_events_total",
			Help: "Inbound media stream messages dropped as malformed",
		}),

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_playout_frames_sent_total",
			Help: "Total number of outbound audio frames transmitted",
		}),
		PlaybackAborts: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_playout_aborts_total",
			Help: "Total number of playbacks cut short by barge-in",
		}),

		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcripts_total",
			Help: "Transcripts received from the recognizer by gating verdict",
		}, []string{"verdict"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_turn_duration_seconds",
			Help:    "Time from accepted transcript to audio handed to playout",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 7),
		}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_provider_errors_total",
			Help: "Errors returned by external speech and language providers",
		}, []string{"stage"}),

		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_orders_submitted_total",
			Help: "Order submission attempts by extraction source and result",
		}, []string{"source", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionsOpened.Inc()
}

func (m *Metrics) SessionClosed(seconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(seconds)
}

func (m *Metrics) MalformedEvent() {
	if m == nil {
		return
	}
	m.MalformedEvents.Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) PlaybackAborted() {
	if m == nil {
		return
	}
	m.PlaybackAborts.Inc()
}

func (m *Metrics) Transcript(verdict string) {
	if m == nil {
		return
	}
	m.Transcripts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) TurnCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.TurnDuration.Observe(seconds)
}

func (m *Metrics) ProviderError(stage string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) OrderSubmitted(source string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.OrdersSubmitted.WithLabelValues(source, result).Inc()
}
