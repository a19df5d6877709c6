// Package metrics exposes render and platform counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mathbot"

// Outcome labels for renders_total.
const (
	OutcomeRendered   = "rendered"
	OutcomeSuperseded = "superseded"
	OutcomeTypeset    = "typeset"
	OutcomeConversion = "conversion"
	OutcomeIO         = "io"
	OutcomeEncoding   = "encoding"
	OutcomeSendFailed = "send_failed"
)

// Metrics holds the bot's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages    *prometheus.CounterVec
	renders     *prometheus.CounterVec
	duration    prometheus.Histogram
	retractions prometheus.Counter
	platformErr *prometheus.CounterVec
	inFlight    prometheus.Gauge
	history     prometheus.GaugeFunc
}

// New registers the collectors. historySize reports the number of tracked responses; it may be nil.
func New(historySize func() int) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound message events by kind and classification.",
		}, []string{"kind", "class"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Finished renders by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent typesetting and converting one message.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		retractions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_retracted_total",
			Help:      "Bot responses deleted after an edit or delete of their source.",
		}),
		platformErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_errors_total",
			Help:      "Chat platform calls that failed, by operation.",
		}, []string{"op"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "renders_in_flight",
			Help:      "Renders currently running.",
		}),
	}

	if historySize == nil {
		historySize = func() int { return 0 }
	}
	m.history = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_entries",
		Help:      "Source messages with a tracked response.",
	}, func() float64 { return float64(historySize()) })

	registry.MustRegister(m.messages, m.renders, m.duration, m.retractions, m.platformErr, m.inFlight, m.history)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveMessage(kind string, class string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind, class).Inc()
}

// RenderStarted marks a render in flight and returns the function that finishes it.
func (m *Metrics) RenderStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}

	started := time.Now()
	m.inFlight.Inc()
	return func(outcome string) {
		m.inFlight.Dec()
		m.duration.Observe(time.Since(started).Seconds())
		m.renders.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveRetraction() {
	if m == nil {
		return
	}
	m.retractions.Inc()
}

func (m *Metrics) ObservePlatformError(op string) {
	if m == nil {
		return
	}
	m.platformErr.WithLabelValues(op).Inc()
}
