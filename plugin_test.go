package migrat_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	migrat "github.com/pressly/migrat-mssql"
	"github.com/pressly/migrat-mssql/lock"
)

// The goal of this test is to run a whole session the way the engine drives it: initialize, lock,
// load and run a migration, store state, unlock and terminate. SQLite stands in for SQL Server;
// see plugin_sqlserver_test.go for the same scenario against a real SQL Server.

func TestPluginSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	fsys := fstest.MapFS{
		"migrations/001_users.mssql": newFile(usersMigration),
		"migrations/002_broken.mssql": newFile(`
-- up:
SELECT 1;
-- up:
SELECT 2;
`),
		"migrations/003_notes.sql": newFile("-- up:\nCREATE TABLE notes (id INTEGER);\n"),
	}
	opts := sqliteOptions(filepath.Join(dir, "app.db"))
	p, err := migrat.New(opts, migrat.WithFilesystem(fsys), migrat.WithLogger(migrat.NopLogger()))
	require.NoError(t, err)
	locker, ok := p.Locker()
	require.True(t, ok)
	state, ok := p.StateStore()
	require.True(t, ok)
	loader := p.Loader()
	require.Equal(t, "*.mssql", loader.Pattern())

	// Nothing works before Initialize.
	require.ErrorIs(t, locker.Lock(ctx), migrat.ErrNotInitialized)
	_, _, err = state.Get(ctx)
	require.ErrorIs(t, err, migrat.ErrNotInitialized)
	_, err = loader.Load(ctx, "migrations/001_users.mssql")
	require.ErrorIs(t, err, migrat.ErrNotInitialized)

	require.NoError(t, p.Initialize(ctx))
	require.Error(t, p.Initialize(ctx))

	// State
	_, found, err := state.Get(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, state.Set(ctx, `{"applied":["001_users"]}`))
	got, found, err := state.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"applied":["001_users"]}`, got)

	// Lock, and a second session that cannot get it.
	require.NoError(t, locker.Lock(ctx))
	otherOpts := sqliteOptions(filepath.Join(dir, "app.db"))
	otherOpts.LockInterval = 10 * time.Millisecond
	otherOpts.LockMaxAttempts = 2
	other, err := migrat.New(otherOpts, migrat.WithLogger(migrat.NopLogger()))
	require.NoError(t, err)
	require.NoError(t, other.Initialize(ctx))
	t.Cleanup(func() { require.NoError(t, other.Terminate()) })
	otherLocker, ok := other.Locker()
	require.True(t, ok)
	err = otherLocker.Lock(ctx)
	require.ErrorIs(t, err, migrat.ErrLock)
	require.ErrorIs(t, err, lock.ErrLockTimeout)
	require.ErrorIs(t, otherLocker.Unlock(ctx), lock.ErrNotHeld)
	// The other session shares the state.
	otherState, ok := other.StateStore()
	require.True(t, ok)
	got, found, err = otherState.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"applied":["001_users"]}`, got)

	// Migrations
	ex, err := loader.Load(ctx, "migrations/001_users.mssql")
	require.NoError(t, err)
	require.ErrorIs(t, ex.Verify(ctx), migrat.ErrVerifyFailed)
	require.NoError(t, ex.Apply(ctx))
	require.NoError(t, ex.Verify(ctx))
	require.NoError(t, ex.Revert(ctx))
	require.ErrorIs(t, ex.Verify(ctx), migrat.ErrVerifyFailed)

	_, err = loader.Load(ctx, "migrations/002_broken.mssql")
	require.ErrorIs(t, err, migrat.ErrParse)
	require.Contains(t, err.Error(), "002_broken.mssql")
	_, err = loader.Load(ctx, "migrations/003_notes.sql")
	require.ErrorIs(t, err, migrat.ErrParse)
	_, err = loader.Load(ctx, "migrations/004_missing.mssql")
	require.Error(t, err)

	// Unlock hands the lock over.
	require.NoError(t, locker.Unlock(ctx))
	require.ErrorIs(t, locker.Unlock(ctx), lock.ErrNotHeld)
	require.NoError(t, otherLocker.Lock(ctx))
	require.NoError(t, locker.ForceUnlock(ctx))
	require.ErrorIs(t, otherLocker.Unlock(ctx), lock.ErrNotHeld)

	// Terminate
	require.NoError(t, p.Terminate())
	require.NoError(t, p.Terminate())
	require.ErrorIs(t, locker.Lock(ctx), migrat.ErrNotInitialized)
	require.ErrorIs(t, state.Set(ctx, "x"), migrat.ErrNotInitialized)
	_, err = loader.Load(ctx, "migrations/001_users.mssql")
	require.ErrorIs(t, err, migrat.ErrNotInitialized)
	_, err = p.DB()
	require.ErrorIs(t, err, migrat.ErrNotInitialized)
}

func TestPluginInitialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("bootstrap_is_idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.db")
		for range 3 {
			p, err := migrat.New(sqliteOptions(path), migrat.WithLogger(migrat.NopLogger()))
			require.NoError(t, err)
			require.NoError(t, p.Initialize(ctx))
			state, _ := p.StateStore()
			require.NoError(t, state.Set(ctx, "v"))
			require.NoError(t, p.Terminate())
		}
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		defer db.Close()
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "migrat_migrat"`).Scan(&n))
		require.Equal(t, 1, n)
	})
	t.Run("concurrent_initialize", func(t *testing.T) {
		p, err := migrat.New(sqliteOptions(filepath.Join(t.TempDir(), "app.db")), migrat.WithLogger(migrat.NopLogger()))
		require.NoError(t, err)
		const n = 4
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = p.Initialize(ctx)
			}()
		}
		wg.Wait()
		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			require.EqualError(t, err, "plugin already initialized")
		}
		require.Equal(t, 1, ok)
		// The published pool is the one left open.
		db, err := p.DB()
		require.NoError(t, err)
		require.NoError(t, db.PingContext(ctx))
		require.EqualError(t, p.Initialize(ctx), "plugin already initialized")
		require.NoError(t, p.Terminate())
	})
	t.Run("connection_failure", func(t *testing.T) {
		opts := migrat.DefaultOptions()
		opts.Dialect = "sqlite3"
		opts.Database = filepath.Join(t.TempDir(), "missing", "dir", "app.db")
		p, err := migrat.New(opts)
		require.NoError(t, err)
		err = p.Initialize(ctx)
		require.ErrorIs(t, err, migrat.ErrConnection)
		require.True(t, strings.HasPrefix(err.Error(), "unable to connect to SQLite"), err.Error())
		_, err = p.DB()
		require.ErrorIs(t, err, migrat.ErrNotInitialized)
	})
	t.Run("bootstrap_failure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "readonly.db")
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE unrelated (id INTEGER)")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		opts := migrat.DefaultOptions()
		opts.Dialect = "sqlite3"
		opts.DSN = fmt.Sprintf("file:%s?mode=ro", path)
		p, err := migrat.New(opts)
		require.NoError(t, err)
		err = p.Initialize(ctx)
		require.ErrorIs(t, err, migrat.ErrBootstrap)
		require.Contains(t, err.Error(), "migrat.migrat")
		// The pool was closed, and the session can be initialized again later.
		_, err = p.DB()
		require.ErrorIs(t, err, migrat.ErrNotInitialized)
	})
}

func TestEnvsubOption(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fsys := fstest.MapFS{
		"001_table.mssql": newFile("-- up:\nCREATE TABLE ${MIGRAT_TEST_TABLE:-widgets} (id INTEGER);\n" +
			"-- check:\nSELECT 1 FROM sqlite_master WHERE name = 'widgets';\n"),
	}
	opts := sqliteOptions(filepath.Join(t.TempDir(), "app.db"))
	opts.Envsub = true
	p, err := migrat.New(opts, migrat.WithFilesystem(fsys), migrat.WithLogger(migrat.NopLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Initialize(ctx))
	defer p.Terminate()

	ex, err := p.Loader().Load(ctx, "001_table.mssql")
	require.NoError(t, err)
	require.Nil(t, ex.Revert)
	require.NoError(t, ex.Apply(ctx))
	require.NoError(t, ex.Verify(ctx))
}

const usersMigration = `-- Migration created by jane

-- up:
CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
INSERT INTO users (id, name) VALUES (1, 'o''brien');

-- down:
DROP TABLE users;

-- check:
SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'users';
`

func sqliteOptions(path string) *migrat.Options {
	opts := migrat.DefaultOptions()
	opts.Dialect = "sqlite3"
	opts.DSN = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	opts.EnableLocking = true
	opts.EnableStateStorage = true
	return opts
}

func newFile(data string) *fstest.MapFile {
	return &fstest.MapFile{
		Data: []byte(data),
	}
}
