package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	VotesCast           prometheus.Counter
	CastConflicts       prometheus.Counter
	ValidationFailures  *prometheus.CounterVec
	CredentialsIssued   *prometheus.CounterVec
	CastDurationSeconds prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		VotesCast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_votes_cast_total",
			Help: "Total number of votes successfully recorded",
		}),
		CastConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_cast_conflicts_total",
			Help: "Concurrent cast attempts that lost the voter-state race",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotgate_validation_failures_total",
			Help: "Credential validations rejected, by reason code",
		}, []string{"reason"}),
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotgate_credentials_issued_total",
			Help: "Credentials issued, by kind",
		}, []string{"kind"}),
		CastDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ballotgate_cast_duration_seconds",
			Help:    "End-to-end latency of vote casting",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
