// Package metrics provides Prometheus collectors for authentication outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Prometheus records authentication outcomes. Safe for concurrent use.
type Prometheus struct {
	checks   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prometheus{
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognitogate_authentications_total",
			Help: "Total number of bearer token checks",
		}, []string{"result", "reason"}), // reason: failure stage, empty when accepted
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cognitogate_authentication_duration_seconds",
			Help:    "Duration of bearer token checks",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}
}

// ObserveAuthentication records one token check.
func (p *Prometheus) ObserveAuthentication(result, reason string, d time.Duration) {
	p.checks.WithLabelValues(result, reason).Inc()
	p.duration.WithLabelValues(result).Observe(d.Seconds())
}
