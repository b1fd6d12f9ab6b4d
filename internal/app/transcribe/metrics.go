package transcribe

import (
	"github.com/prometheus/client_golang/prometheus"

	"voxflow/internal/app/model"
)

// Job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
)

// Metrics counts orchestrator results.
type Metrics struct {
	jobs *prometheus.CounterVec
}

// NewMetrics registers the job counter on reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxflow_transcribe_jobs_total",
			Help: "Transcribe job results by outcome and reason.",
		}, []string{"outcome", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.jobs)
	}
	return m
}

// Observe records one result.
func (m *Metrics) Observe(r model.JobResult) {
	if m == nil {
		return
	}
	outcome, reason := OutcomeFailed, r.Error
	switch {
	case r.Skipped:
		outcome, reason = OutcomeSkipped, r.Reason
	case r.OK:
		outcome, reason = OutcomeSuccess, r.Method
	case r.Retryable:
		outcome = OutcomeRetry
	}
	m.jobs.WithLabelValues(outcome, reason).Inc()
}
