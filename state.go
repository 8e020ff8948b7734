package migrat

import (
	"context"
	"errors"
	"fmt"

	"github.com/pressly/migrat-mssql/database"
)

// StateStore persists the engine's global migration state in the metadata table.
type StateStore interface {
	// Get returns the stored state. found is false when no state was ever stored.
	Get(ctx context.Context) (state string, found bool, err error)
	// Set stores state, replacing any previous value.
	Set(ctx context.Context, state string) error
}

type stateStore struct {
	p *Plugin
}

var _ StateStore = (*stateStore)(nil)

func (s *stateStore) Get(ctx context.Context) (string, bool, error) {
	db, err := s.p.conn()
	if err != nil {
		return "", false, err
	}
	state, err := s.p.store.Get(ctx, db, database.KeyState)
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: get %q from %s: %w", ErrQuery, database.KeyState, s.p.store.Tablename(), err)
	}
	return state, true, nil
}

func (s *stateStore) Set(ctx context.Context, state string) error {
	db, err := s.p.conn()
	if err != nil {
		return err
	}
	if err := s.p.store.Set(ctx, db, database.KeyState, state); err != nil {
		return fmt.Errorf("%w: set %q in %s: %w", ErrQuery, database.KeyState, s.p.store.Tablename(), err)
	}
	return nil
}
