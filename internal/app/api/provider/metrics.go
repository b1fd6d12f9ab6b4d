package provider

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records provider request outcomes and latency.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates provider metrics and registers them on reg. A nil
// registerer keeps the collectors unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxflow",
			Name:      "provider_requests_total",
			Help:      "Transcription provider requests by result.",
		}, []string{"provider", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxflow",
			Name:      "provider_latency_seconds",
			Help:      "Transcription provider request latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

// RecordSuccess records a successful transcription
func (m *Metrics) RecordSuccess(provider string, latency time.Duration) {
	m.requests.WithLabelValues(provider, "success").Inc()
	m.latency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordFailure records a failed transcription
func (m *Metrics) RecordFailure(provider string, errorCode string) {
	m.requests.WithLabelValues(provider, errorCode).Inc()
}

// Instrument wraps a Transcriber so every call is recorded.
func Instrument(t Transcriber, m *Metrics) Transcriber {
	if m == nil {
		return t
	}
	return &instrumented{Transcriber: t, metrics: m}
}

type instrumented struct {
	Transcriber
	metrics *Metrics
}

func (i *instrumented) Transcribe(ctx context.Context, inputFilePath string) (*Result, error) {
	start := time.Now()
	res, err := i.Transcriber.Transcribe(ctx, inputFilePath)
	if err != nil {
		i.metrics.RecordFailure(i.Name(), string(ClassifyTransportError(err).Code()))
		return nil, err
	}
	i.metrics.RecordSuccess(i.Name(), time.Since(start))
	return res, nil
}
