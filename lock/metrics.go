package lock

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	attempts  prometheus.Counter
	contended prometheus.Counter
	acquired  prometheus.Counter
	failures  prometheus.Counter
	wait      prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrat_lock_attempts_total",
			Help: "Total number of lock acquisition attempts.",
		}),
		contended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrat_lock_contended_total",
			Help: "Total number of lock acquisition attempts that found the lock held.",
		}),
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrat_lock_acquired_total",
			Help: "Total number of successful lock acquisitions.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migrat_lock_failures_total",
			Help: "Total number of lock acquisition attempts that failed with an error.",
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "migrat_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the lock.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []*prometheus.Counter{&m.attempts, &m.contended, &m.acquired, &m.failures} {
		existing, err := register(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = existing.(prometheus.Counter)
	}
	existing, err := register(reg, m.wait)
	if err != nil {
		return nil, err
	}
	m.wait = existing.(prometheus.Histogram)
	return m, nil
}

// register registers c, or returns the identical collector registered by another locker.
func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}
