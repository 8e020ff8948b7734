package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/pressly/migrat-mssql/database"
)

// errHeld marks an attempt that found the lock row present. It is retried, never returned.
var errHeld = errors.New("lock held by another process")

// TableLocker is a Locker backed by the reserved lock row of the metadata table.
//
// Defaults:
//
//	Lock key: "lock"
//	Lock retry: 500ms intervals, no limit (bounded only by the context)
//
// The lock row value is the acquisition time in Unix milliseconds. The locker remembers the value
// it wrote and Unlock only deletes the row while it still carries that value.
type TableLocker struct {
	store   database.Store
	config  tableLockerConfig
	logger  *slog.Logger
	metrics *metrics

	mu    sync.Mutex
	token string
}

var _ Locker = (*TableLocker)(nil)

// NewTableLocker returns a TableLocker that stores its lock row through store. The metadata table
// must already exist; see [database.Store.Bootstrap].
func NewTableLocker(store database.Store, options ...TableLockerOption) (*TableLocker, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	config := tableLockerConfig{
		key:   database.KeyLock,
		retry: DefaultRetryPolicy(),
		now:   time.Now,
	}
	for _, opt := range options {
		if err := opt.apply(&config); err != nil {
			return nil, err
		}
	}
	if config.instanceID == "" {
		config.instanceID = uuid.NewString()
	}
	logger := config.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m, err := newMetrics(config.registerer)
	if err != nil {
		return nil, fmt.Errorf("register lock metrics: %w", err)
	}
	return &TableLocker{
		store:   store,
		config:  config,
		logger:  logger.With(slog.String("locker", config.instanceID), slog.String("table", store.Tablename())),
		metrics: m,
	}, nil
}

// Held reports whether this locker believes it holds the lock.
func (l *TableLocker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token != ""
}

// Lock acquires the lock. Each attempt runs on its own connection taken from db and returned
// before the attempt ends. While another process holds the lock, Lock waits according to the
// retry policy; it returns ErrLockTimeout when the policy is exhausted and ctx.Err() when ctx is
// done. Any other error ends the wait immediately.
func (l *TableLocker) Lock(ctx context.Context, db *sql.DB) error {
	if l.Held() {
		return ErrAlreadyHeld
	}
	start := time.Now()
	var attempts int
	err := retry.Do(ctx, l.config.retry.backoff(), func(ctx context.Context) error {
		attempts++
		l.metrics.attempts.Inc()
		token, acquired, err := l.tryLock(ctx, db)
		if err != nil {
			l.metrics.failures.Inc()
			return err
		}
		if !acquired {
			l.metrics.contended.Inc()
			l.logger.DebugContext(ctx, "lock held by another process, retrying",
				slog.Int("attempt", attempts),
				slog.Duration("interval", l.config.retry.Interval),
			)
			return retry.RetryableError(errHeld)
		}
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
		return nil
	})
	waited := time.Since(start)
	if err != nil {
		if errors.Is(err, errHeld) {
			return fmt.Errorf("%w: %d attempts over %s", ErrLockTimeout, attempts, waited.Round(time.Millisecond))
		}
		return err
	}
	l.metrics.acquired.Inc()
	l.metrics.wait.Observe(waited.Seconds())
	l.logger.InfoContext(ctx, "lock acquired",
		slog.Int("attempts", attempts),
		slog.Duration("waited", waited),
	)
	return nil
}

// tryLock makes a single acquisition attempt. It returns acquired=false without error when the
// lock row is present.
func (l *TableLocker) tryLock(ctx context.Context, db *sql.DB) (token string, acquired bool, retErr error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return "", false, fmt.Errorf("open lock connection: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			if acquired {
				// The lock row is committed; losing track of it would leave it behind.
				l.logger.WarnContext(ctx, "failed to close lock connection", slog.String("error", err.Error()))
				return
			}
			retErr = multierr.Append(retErr, err)
		}
	}()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin lock transaction: %w", err)
	}
	_, found, err := l.store.SelectForLock(ctx, tx, l.config.key)
	if err != nil {
		return "", false, multierr.Append(err, tx.Rollback())
	}
	if found {
		if err := tx.Rollback(); err != nil {
			return "", false, fmt.Errorf("rollback lock transaction: %w", err)
		}
		return "", false, nil
	}
	token = strconv.FormatInt(l.config.now().UnixMilli(), 10)
	if err := l.store.Insert(ctx, tx, l.config.key, token); err != nil {
		err = multierr.Append(err, tx.Rollback())
		// A concurrent locker may have committed its row between our select and insert, and the
		// insert then failed on the primary key. That is contention, not a failure.
		if _, getErr := l.store.Get(ctx, conn, l.config.key); getErr == nil {
			return "", false, nil
		}
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit lock transaction: %w", err)
	}
	return token, true, nil
}

// Unlock releases the lock acquired by this locker. It returns ErrNotHeld, and deletes nothing,
// when this locker did not acquire the lock or the lock row no longer carries its token.
func (l *TableLocker) Unlock(ctx context.Context, db *sql.DB) error {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return fmt.Errorf("%w: %q in %q was not acquired", ErrNotHeld, l.config.key, l.store.Tablename())
	}
	n, err := l.store.DeleteIfValue(ctx, db, l.config.key, token)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
	if n == 0 {
		return fmt.Errorf("%w: %q in %q was removed or replaced", ErrNotHeld, l.config.key, l.store.Tablename())
	}
	l.logger.InfoContext(ctx, "lock released")
	return nil
}

// ForceUnlock deletes the lock row regardless of who holds it. It is meant for operators clearing
// a lock left behind by a process that died while holding it. Deleting an absent row is not an
// error.
func (l *TableLocker) ForceUnlock(ctx context.Context, db *sql.DB) error {
	n, err := l.store.Delete(ctx, db, l.config.key)
	if err != nil {
		return fmt.Errorf("force release lock: %w", err)
	}
	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
	l.logger.WarnContext(ctx, "lock force released", slog.Int64("rows", n))
	return nil
}
