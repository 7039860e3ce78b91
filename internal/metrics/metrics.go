package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the fitting-room collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationsRunning prometheus.Gauge
	uploadsRejected    *prometheus.CounterVec
	sessionsActive     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fitting_generations_total",
			Help: "Try-on generations by outcome",
		}, []string{"outcome"}),
		generationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fitting_generation_duration_seconds",
			Help:    "Wall time of the try-on pipeline",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 240},
		}, []string{"outcome"}),
		generationsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "fitting_generations_in_flight",
			Help: "Try-on pipelines currently running",
		}),
		uploadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fitting_uploads_rejected_total",
			Help: "Photo uploads rejected before any network activity",
		}, []string{"reason"}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "fitting_sessions_active",
			Help: "Open fitting sessions",
		}),
	}
}

func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.generationsRunning.Inc()
}

func (m *Metrics) GenerationFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.generationsRunning.Dec()
	m.generations.WithLabelValues(outcome).Inc()
	m.generationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) UploadRejected(reason string) {
	if m == nil {
		return
	}
	m.uploadsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
