// Package lock provides a database-backed mutual exclusion lock for migrat.
//
// The lock is a single reserved row in the metadata table. A process holds the lock while that row
// exists and carries the token the process wrote. Acquisition is a short check-then-insert
// transaction on a dedicated connection, retried on a fixed interval while another process holds
// the row. No database-specific advisory lock primitives are used, so the same scheme works on
// every dialect supported by the database package, at the cost of polling.
package lock

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotHeld is returned by Unlock when the lock is not held by this locker, either because it
	// was never acquired or because the lock row was removed or replaced by someone else.
	ErrNotHeld = errors.New("lock not held by this locker")

	// ErrAlreadyHeld is returned by Lock when this locker already holds the lock.
	ErrAlreadyHeld = errors.New("lock already held by this locker")

	// ErrLockTimeout is returned by Lock when the retry policy is exhausted while another process
	// still holds the lock.
	ErrLockTimeout = errors.New("timed out waiting for lock")
)

// Locker defines the methods to lock and unlock the database.
type Locker interface {
	// Lock blocks until the lock is acquired, the retry policy is exhausted, or ctx is done.
	Lock(ctx context.Context, db *sql.DB) error
	// Unlock releases a lock previously acquired with Lock.
	Unlock(ctx context.Context, db *sql.DB) error
}
