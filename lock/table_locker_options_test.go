package lock

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pressly/migrat-mssql/database"
)

func TestTableLockerOptions(t *testing.T) {
	store, err := database.NewStore(database.DialectMSSQL, "migrat", "migrat")
	require.NoError(t, err)

	// Test that options are applied correctly
	locker, err := NewTableLocker(store,
		WithLockKey("custom"),
		WithRetryPolicy(RetryPolicy{Interval: time.Second, MaxAttempts: 3, MaxWait: time.Minute}),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRegisterer(prometheus.NewRegistry()),
		WithInstanceID("worker-1"),
	)
	require.NoError(t, err)
	require.NotNil(t, locker)
	require.Equal(t, "custom", locker.config.key)
	require.Equal(t, "worker-1", locker.config.instanceID)
	require.Equal(t, uint64(3), locker.config.retry.MaxAttempts)
	require.False(t, locker.Held())
	// Test defaults
	locker, err = NewTableLocker(store)
	require.NoError(t, err)
	require.Equal(t, database.KeyLock, locker.config.key)
	require.Equal(t, DefaultRetryPolicy(), locker.config.retry)
	require.NotEmpty(t, locker.config.instanceID)
	// Test nil store
	_, err = NewTableLocker(nil)
	require.Error(t, err)
	// Test invalid retry interval
	_, err = NewTableLocker(store, WithRetryPolicy(RetryPolicy{Interval: 0}))
	require.Error(t, err)
	// Test negative max wait
	_, err = NewTableLocker(store, WithRetryPolicy(RetryPolicy{Interval: time.Second, MaxWait: -1}))
	require.Error(t, err)
	// Test invalid lock timeout interval duration
	_, err = NewTableLocker(store, WithLockTimeout(0, 10))
	require.Error(t, err)
	// Test invalid lock timeout max attempts
	_, err = NewTableLocker(store, WithLockTimeout(5*time.Second, 0))
	require.Error(t, err)
	// Test empty lock key
	_, err = NewTableLocker(store, WithLockKey(""))
	require.Error(t, err)
	// Test nil logger and registerer
	_, err = NewTableLocker(store, WithLogger(nil))
	require.Error(t, err)
	_, err = NewTableLocker(store, WithRegisterer(nil))
	require.Error(t, err)
	// Test empty instance id
	_, err = NewTableLocker(store, WithInstanceID(""))
	require.Error(t, err)
}

func TestSharedRegisterer(t *testing.T) {
	store, err := database.NewStore(database.DialectMSSQL, "migrat", "migrat")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	a, err := NewTableLocker(store, WithRegisterer(reg))
	require.NoError(t, err)
	b, err := NewTableLocker(store, WithRegisterer(reg))
	require.NoError(t, err)
	// Both lockers report to the same collectors.
	a.metrics.attempts.Inc()
	b.metrics.attempts.Inc()
	require.Same(t, a.metrics.attempts, b.metrics.attempts)
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Run("max_attempts", func(t *testing.T) {
		b := RetryPolicy{Interval: time.Millisecond, MaxAttempts: 3}.backoff()
		var retries int
		for {
			if _, stop := b.Next(); stop {
				break
			}
			retries++
		}
		// Three attempts means two waits.
		require.Equal(t, 2, retries)
	})
	t.Run("unbounded", func(t *testing.T) {
		b := DefaultRetryPolicy().backoff()
		for range 100 {
			d, stop := b.Next()
			require.False(t, stop)
			require.Equal(t, DefaultRetryInterval, d)
		}
	})
}
