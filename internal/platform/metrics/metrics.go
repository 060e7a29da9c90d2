// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	VisitsRegistered    prometheus.Counter
	RateLimitedRequests prometheus.Counter
	AuditWriteFailures  *prometheus.CounterVec
	RenameFanoutErrors  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		VisitsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matningsabo_visits_registered_total",
			Help: "Total number of outing visits registered",
		}),
		RateLimitedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matningsabo_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		AuditWriteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matningsabo_audit_write_failures_total",
			Help: "Total number of best-effort audit writes that failed",
		}, []string{"kind"}),
		RenameFanoutErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matningsabo_activity_rename_fanout_errors_total",
			Help: "Total number of visit records that failed to update during an activity rename",
		}),
	}
}

// NewForTest registers against a private registry so parallel tests don't
// collide on the default one.
func NewForTest() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		VisitsRegistered:    factory.NewCounter(prometheus.CounterOpts{Name: "matningsabo_visits_registered_total"}),
		RateLimitedRequests: factory.NewCounter(prometheus.CounterOpts{Name: "matningsabo_rate_limited_requests_total"}),
		AuditWriteFailures:  factory.NewCounterVec(prometheus.CounterOpts{Name: "matningsabo_audit_write_failures_total"}, []string{"kind"}),
		RenameFanoutErrors:  factory.NewCounter(prometheus.CounterOpts{Name: "matningsabo_activity_rename_fanout_errors_total"}),
	}
}
