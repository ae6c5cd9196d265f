package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sameehj/scriptguard/pkg/validator"
)

var (
	// scriptguard_validations_total{verdict=valid|invalid}
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptguard_validations_total",
		Help: "Number of scripts validated, by verdict",
	}, []string{"verdict"})

	// scriptguard_violations_total{type=dynamic_path|dangerous_command|path_escape}
	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptguard_violations_total",
		Help: "Number of violations reported, by type",
	}, []string{"type"})

	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scriptguard_validation_duration_seconds",
		Help:    "Time spent validating a single script",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	})
)

// Observe records one validation.
func Observe(result validator.Result, elapsed time.Duration) {
	verdict := "valid"
	if !result.Valid {
		verdict = "invalid"
	}
	ValidationsTotal.WithLabelValues(verdict).Inc()
	for _, v := range result.Violations {
		ViolationsTotal.WithLabelValues(string(v.Type)).Inc()
	}
	ValidationDuration.Observe(elapsed.Seconds())
}
