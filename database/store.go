package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/pressly/migrat-mssql/internal/dialect/dialectquery"
)

const (
	// KeyLock is the reserved key whose presence means the migration lock is held.
	KeyLock = "lock"
	// KeyState is the reserved key holding the serialized global migration state.
	KeyState = "state"
)

var (
	// ErrKeyNotFound is returned by [Store.Get] when no row exists for the key. It is an expected
	// outcome, not a query failure.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKey is returned when a key is empty or longer than the key column allows.
	ErrInvalidKey = errors.New("invalid key")
)

// Store is an interface that defines methods for provisioning and accessing the metadata table.
//
// Each database dialect requires a specific implementation of this interface. A dialect represents
// a set of SQL statements specific to a particular database system.
type Store interface {
	// Tablename is the qualified name of the metadata table, for use in messages.
	Tablename() string

	// Bootstrap creates the metadata schema and table when they do not exist. It is safe to call
	// repeatedly and concurrently; existing rows are never touched.
	Bootstrap(ctx context.Context, db DBTxConn) error

	// TableExists reports whether the metadata table exists.
	TableExists(ctx context.Context, db DBTxConn) (bool, error)

	// Get returns the value stored for key. If the query succeeds but there is no row for the
	// key, Get returns [ErrKeyNotFound].
	Get(ctx context.Context, db DBTxConn, key string) (string, error)

	// Set stores value for key, updating the existing row or inserting a new one. When db can
	// begin transactions, the update and the insert run in a single transaction.
	Set(ctx context.Context, db DBTxConn, key, value string) error

	// Delete removes the row for key and returns the number of rows removed. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, db DBTxConn, key string) (int64, error)

	// DeleteIfValue removes the row for key only when it holds value, and returns the number of
	// rows removed.
	DeleteIfValue(ctx context.Context, db DBTxConn, key, value string) (int64, error)

	// SelectForLock selects the value for key inside a lock transaction. On dialects that support
	// it, the key range stays locked until the transaction ends, even when the row is absent.
	SelectForLock(ctx context.Context, tx *sql.Tx, key string) (value string, found bool, err error)

	// Insert inserts a row for key. It fails if the key already exists.
	Insert(ctx context.Context, db DBTxConn, key, value string) error

	private()
}

// NewStore returns a new [Store] for the metadata table schema.table, backed by the given
// dialect.
func NewStore(dialect Dialect, schema, table string) (Store, error) {
	if dialect == "" {
		return nil, errors.New("dialect must not be empty")
	}
	if err := validateIdentifier("schema", schema); err != nil {
		return nil, err
	}
	if err := validateIdentifier("table", table); err != nil {
		return nil, err
	}
	querier, err := newQuerier(dialect, schema, table)
	if err != nil {
		return nil, err
	}
	return &store{
		schema:  schema,
		table:   table,
		querier: querier,
	}, nil
}

type store struct {
	schema  string
	table   string
	querier dialectquery.Querier
}

var _ Store = (*store)(nil)

func (s *store) private() {}

func (s *store) Tablename() string {
	return s.schema + "." + s.table
}

func (s *store) Bootstrap(ctx context.Context, db DBTxConn) error {
	if q, args := s.querier.SchemaExists(); q != "" {
		exists, err := rowExists(ctx, db, q, args...)
		if err != nil {
			return fmt.Errorf("get schema info %q: %w", s.schema, err)
		}
		if !exists {
			if _, err := db.ExecContext(ctx, s.querier.CreateSchema()); err != nil {
				// Double-check if another process created it concurrently.
				if exists, checkErr := rowExists(ctx, db, q, args...); checkErr != nil || !exists {
					return fmt.Errorf("create schema %q: %w", s.schema, err)
				}
			}
		}
	}
	exists, err := s.TableExists(ctx, db)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, s.querier.CreateTable()); err != nil {
		if exists, checkErr := s.TableExists(ctx, db); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create table %q: %w", s.Tablename(), err)
	}
	return nil
}

func (s *store) TableExists(ctx context.Context, db DBTxConn) (bool, error) {
	q, args := s.querier.TableExists()
	exists, err := rowExists(ctx, db, q, args...)
	if err != nil {
		return false, fmt.Errorf("get table info %q: %w", s.Tablename(), err)
	}
	return exists, nil
}

func (s *store) Get(ctx context.Context, db DBTxConn, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	var value sql.NullString
	if err := db.QueryRowContext(ctx, s.querier.GetValue(), key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %q in %q", ErrKeyNotFound, key, s.Tablename())
		}
		return "", fmt.Errorf("get value %q from %q: %w", key, s.Tablename(), err)
	}
	return value.String, nil
}

func (s *store) Set(ctx context.Context, db DBTxConn, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if b, ok := db.(txBeginner); ok {
		return runTx(ctx, b, func(tx *sql.Tx) error {
			return s.upsert(ctx, tx, key, value)
		})
	}
	return s.upsert(ctx, db, key, value)
}

func (s *store) upsert(ctx context.Context, db DBTxConn, key, value string) error {
	if _, err := db.ExecContext(ctx, s.querier.UpdateValue(), value, key); err != nil {
		return fmt.Errorf("update value %q in %q: %w", key, s.Tablename(), err)
	}
	if _, err := db.ExecContext(ctx, s.querier.InsertValue(), key, value, key); err != nil {
		return fmt.Errorf("insert value %q into %q: %w", key, s.Tablename(), err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, db DBTxConn, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, s.querier.DeleteValue(), key)
	if err != nil {
		return 0, fmt.Errorf("delete value %q from %q: %w", key, s.Tablename(), err)
	}
	return rowsAffected(res), nil
}

func (s *store) DeleteIfValue(ctx context.Context, db DBTxConn, key, value string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, s.querier.DeleteValueIf(), key, value)
	if err != nil {
		return 0, fmt.Errorf("delete value %q from %q: %w", key, s.Tablename(), err)
	}
	return rowsAffected(res), nil
}

func (s *store) SelectForLock(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var value sql.NullString
	if err := tx.QueryRowContext(ctx, s.querier.SelectLock(), key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select %q from %q: %w", key, s.Tablename(), err)
	}
	return value.String, true, nil
}

func (s *store) Insert(ctx context.Context, db DBTxConn, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.querier.InsertLock(), key, value); err != nil {
		return fmt.Errorf("insert %q into %q: %w", key, s.Tablename(), err)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidKey)
	}
	if len(key) > dialectquery.KeyMaxLength {
		return fmt.Errorf("%w: key %q exceeds %d characters", ErrInvalidKey, key, dialectquery.KeyMaxLength)
	}
	return nil
}

func rowExists(ctx context.Context, db DBTxConn, query string, args ...any) (_ bool, retErr error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer func() {
		retErr = multierr.Append(retErr, rows.Close())
	}()
	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return exists, nil
}

// rowsAffected returns -1 when the driver cannot report affected rows.
func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

func runTx(ctx context.Context, db txBeginner, fn func(*sql.Tx) error) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, tx.Rollback())
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
