package validation

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	jose "github.com/picatz/jose/v2/pkg"
)

// Outcome label values of the validation metrics.
const (
	OutcomeValid    = "valid"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Metrics holds metrics about validation calls.
type Metrics struct {
	validations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the validation metrics and registers them with reg,
// if it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jose",
			Subsystem: "validation",
			Name:      "tokens_total",
			Help:      "Total number of validated tokens by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jose",
			Subsystem: "validation",
			Name:      "duration_seconds",
			Help:      "Time spent decoding and validating a token.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.validations, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func outcome(r *Result) string {
	var validationErr *jose.ValidationError

	switch {
	case r.Valid():
		return OutcomeValid
	case r.Canceled():
		return OutcomeCanceled
	case errors.As(r.Err(), &validationErr):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func (m *Metrics) record(kind string, r *Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(kind, outcome(r)).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
