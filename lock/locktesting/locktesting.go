// Package locktesting provides reusable tests for [lock.Locker] implementations.
package locktesting

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pressly/migrat-mssql/lock"
)

// TestConcurrentLocking is a reusable test helper that verifies concurrent locker behavior. It
// creates a number of lockers using the factory function and verifies that only one locker can
// acquire the lock at a time.
//
// IMPORTANT: The newLocker function MUST create lockers that compete for the SAME lock row, i.e.
// the same metadata table and lock key. If each locker targets a different row, multiple lockers
// will succeed (which breaks the test).
//
// The test verifies the core locking contract:
//
//  1. Only one locker should successfully acquire the lock when running concurrently
//  2. The other lockers should fail to acquire the lock before their deadline
//  3. All lockers should complete without hanging
func TestConcurrentLocking(
	t *testing.T,
	db *sql.DB,
	newLocker func(*testing.T) lock.Locker,
	lockTimeout time.Duration,
) {
	t.Helper()

	// Number of concurrent lockers to test
	const count = 5

	lockers := make([]lock.Locker, count)
	for i := range count {
		lockers[i] = newLocker(t)
	}

	// Use buffered channel to collect successful lock acquisitions
	successCh := make(chan int, count)
	var wg sync.WaitGroup

	// Start multiple goroutines trying to acquire the same lock
	for i := range count {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
			defer cancel()

			if err := lockers[i].Lock(ctx, db); err != nil {
				return
			}
			successCh <- i

			// Hold the lock until every other locker has given up.
			time.Sleep(lockTimeout * 2)

			if err := lockers[i].Unlock(context.Background(), db); err != nil {
				t.Errorf("Locker %d failed to release lock: %v", i, err)
			}
		}()
	}
	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(lockTimeout*2 + 5*time.Second):
		t.Fatal("Test timed out - lockers took too long")
	}

	close(successCh)
	var successful []int
	for id := range successCh {
		successful = append(successful, id)
	}
	require.Len(t, successful, 1, "Exactly one locker should acquire the lock")
}

// TestSequentialLocking verifies that lockers waiting on each other all eventually acquire the
// lock, one at a time. Each locker holds the lock briefly and checks that nobody else is inside
// the critical section.
//
// The lockers returned by newLocker must retry without an attempt limit.
func TestSequentialLocking(
	t *testing.T,
	db *sql.DB,
	newLocker func(*testing.T) lock.Locker,
	count int,
) {
	t.Helper()

	lockers := make([]lock.Locker, count)
	for i := range count {
		lockers[i] = newLocker(t)
	}

	var (
		inside   atomic.Int32
		acquired atomic.Int32
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for i := range count {
		g.Go(func() error {
			if err := lockers[i].Lock(ctx, db); err != nil {
				return fmt.Errorf("locker %d: lock: %w", i, err)
			}
			if n := inside.Add(1); n != 1 {
				return fmt.Errorf("locker %d: %d lockers inside the critical section", i, n)
			}
			acquired.Add(1)
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			if err := lockers[i].Unlock(ctx, db); err != nil {
				return fmt.Errorf("locker %d: unlock: %w", i, err)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, count, acquired.Load())
}
