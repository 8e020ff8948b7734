package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultRetryInterval is the time to wait between two acquisition attempts while another
	// process holds the lock.
	DefaultRetryInterval = 500 * time.Millisecond
)

// RetryPolicy controls how Lock waits for a lock held by another process.
//
// The zero value of MaxAttempts and MaxWait means unbounded: Lock then polls until it acquires
// the lock or its context is done.
type RetryPolicy struct {
	// Interval is the constant delay between attempts.
	Interval time.Duration
	// MaxAttempts is the maximum number of acquisition attempts, including the first.
	MaxAttempts uint64
	// MaxWait is the maximum total time spent waiting between attempts.
	MaxWait time.Duration
}

// DefaultRetryPolicy polls every 500ms, forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: DefaultRetryInterval}
}

func (p RetryPolicy) validate() error {
	if p.Interval <= 0 {
		return errors.New("retry interval must be positive")
	}
	if p.MaxWait < 0 {
		return errors.New("max wait must not be negative")
	}
	return nil
}

// backoff returns a new backoff. Backoffs are stateful, so each Lock call needs its own.
func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewConstant(p.Interval)
	if p.MaxAttempts > 0 {
		b = retry.WithMaxRetries(p.MaxAttempts-1, b)
	}
	if p.MaxWait > 0 {
		b = retry.WithMaxDuration(p.MaxWait, b)
	}
	return b
}

// TableLockerOption is used to configure a TableLocker.
type TableLockerOption interface {
	apply(*tableLockerConfig) error
}

// WithRetryPolicy sets the policy used while waiting for a lock held by another process.
func WithRetryPolicy(policy RetryPolicy) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if err := policy.validate(); err != nil {
			return err
		}
		c.retry = policy
		return nil
	})
}

// WithLockTimeout is a shorthand for a bounded RetryPolicy: retry every interval, for at most
// maxAttempts attempts.
func WithLockTimeout(interval time.Duration, maxAttempts uint64) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if maxAttempts == 0 {
			return errors.New("max attempts must be positive")
		}
		policy := RetryPolicy{Interval: interval, MaxAttempts: maxAttempts}
		if err := policy.validate(); err != nil {
			return err
		}
		c.retry = policy
		return nil
	})
}

// WithLockKey sets the reserved key of the lock row. The default is "lock".
func WithLockKey(key string) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if key == "" {
			return errors.New("lock key must not be empty")
		}
		c.key = key
		return nil
	})
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	})
}

// WithRegisterer registers the locker metrics with the given Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		c.registerer = reg
		return nil
	})
}

// WithInstanceID sets the identifier used for this locker in log records. The default is a random
// UUID.
func WithInstanceID(id string) TableLockerOption {
	return tableLockerConfigFunc(func(c *tableLockerConfig) error {
		if id == "" {
			return fmt.Errorf("instance id must not be empty")
		}
		c.instanceID = id
		return nil
	})
}

type tableLockerConfig struct {
	key        string
	retry      RetryPolicy
	logger     *slog.Logger
	registerer prometheus.Registerer
	instanceID string
	now        func() time.Time
}

var _ TableLockerOption = (tableLockerConfigFunc)(nil)

type tableLockerConfigFunc func(*tableLockerConfig) error

func (f tableLockerConfigFunc) apply(cfg *tableLockerConfig) error {
	return f(cfg)
}
