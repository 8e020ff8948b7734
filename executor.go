package migrat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/pressly/migrat-mssql/database"
)

// Queries holds the text of the three sections of a migration file.
type Queries struct {
	Up    string
	Down  string
	Check string
}

// ExecFunc runs one migration query.
type ExecFunc func(ctx context.Context) error

// Executors runs the queries of one migration. A field is nil when the migration has no query
// for it.
type Executors struct {
	// Apply runs the up query.
	Apply ExecFunc
	// Revert runs the down query.
	Revert ExecFunc
	// Verify runs the check query and fails with ErrVerifyFailed when it returns no rows.
	Verify ExecFunc
}

// Build binds q to db. Each query runs as a single batch; nothing is split or validated.
func Build(db database.DBTxConn, q Queries) *Executors {
	return &Executors{
		Apply:  queryExecutor(db, q.Up),
		Revert: queryExecutor(db, q.Down),
		Verify: checkExecutor(db, q.Check),
	}
}

func queryExecutor(db database.DBTxConn, query string) ExecFunc {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return func(ctx context.Context) error {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("%w: %w", ErrExec, err)
		}
		return nil
	}
}

func checkExecutor(db database.DBTxConn, query string) ExecFunc {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return func(ctx context.Context) (retErr error) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExec, err)
		}
		defer func() {
			if err := rows.Close(); err != nil {
				retErr = multierr.Append(retErr, fmt.Errorf("%w: %w", ErrExec, err))
			}
		}()
		if rows.Next() {
			return nil
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrExec, err)
		}
		return fmt.Errorf("%w (query returned zero rows)", ErrVerifyFailed)
	}
}
