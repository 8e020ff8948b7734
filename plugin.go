package migrat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/pressly/migrat-mssql/database"
	"github.com/pressly/migrat-mssql/lock"
)

// Locker is the migration lock of a plugin session.
type Locker interface {
	// Lock blocks until the lock is acquired, the retry policy is exhausted or ctx is done.
	Lock(ctx context.Context) error
	// Unlock releases the lock acquired by Lock.
	Unlock(ctx context.Context) error
	// ForceUnlock removes the lock whoever holds it.
	ForceUnlock(ctx context.Context) error
}

// Plugin is a session against one database. It owns the connection pool from Initialize to
// Terminate.
type Plugin struct {
	opts   *Options
	config config
	store  database.Store
	locker *lock.TableLocker

	mu sync.Mutex
	db *sql.DB
}

// New returns a Plugin for opts. It validates opts but does not connect; see Initialize.
func New(opts *Options, pluginOpts ...PluginOption) (*Plugin, error) {
	if err := validateOptions(opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	cfg := config{
		logger: &stdLogger{},
		fsys:   osFS{},
	}
	for _, opt := range pluginOpts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}
	d, err := opts.dialect()
	if err != nil {
		return nil, err
	}
	store, err := database.NewStore(d, opts.MigratSchema, opts.MigratTable)
	if err != nil {
		return nil, err
	}
	p := &Plugin{
		opts:   opts,
		config: cfg,
		store:  store,
	}
	if opts.EnableLocking {
		lockOpts := append([]lock.TableLockerOption{
			lock.WithRetryPolicy(opts.retryPolicy()),
		}, cfg.lockOptions...)
		p.locker, err = lock.NewTableLocker(store, lockOpts...)
		if err != nil {
			return nil, fmt.Errorf("configure lock: %w", err)
		}
	}
	return p, nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return Name }

// Version returns the plugin version.
func (p *Plugin) Version() string { return Version() }

// Template renders the scaffold of a new migration file.
func (p *Plugin) Template(details TemplateDetails) (string, error) {
	return Template(details)
}

// Initialize connects to the database and provisions the metadata table. The pool is closed
// again when provisioning fails, or when another Initialize call finished first.
func (p *Plugin) Initialize(ctx context.Context) error {
	if p.initialized() {
		return errAlreadyInitialized
	}
	db, err := Open(ctx, p.opts)
	if err != nil {
		return err
	}
	if err := p.store.Bootstrap(ctx, db); err != nil {
		return fmt.Errorf("%w %s: %w", ErrBootstrap, p.store.Tablename(), multierr.Append(err, db.Close()))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return multierr.Append(errAlreadyInitialized, db.Close())
	}
	p.db = db
	return nil
}

var errAlreadyInitialized = errors.New("plugin already initialized")

func (p *Plugin) initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db != nil
}

// Terminate closes the connection pool. Calling Terminate on a session that is not initialized
// is a no-op.
func (p *Plugin) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	if p.locker != nil && p.locker.Held() {
		p.config.logger.Printf("%s: terminating while holding the lock on %s", Name, p.store.Tablename())
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// Locker returns the migration lock. ok is false when locking is disabled.
func (p *Plugin) Locker() (_ Locker, ok bool) {
	if p.locker == nil {
		return nil, false
	}
	return &sessionLocker{p: p}, true
}

// StateStore returns the global state store. ok is false when state storage is disabled.
func (p *Plugin) StateStore() (_ StateStore, ok bool) {
	if !p.opts.EnableStateStorage {
		return nil, false
	}
	return &stateStore{p: p}, true
}

// Loader returns the migration file loader.
func (p *Plugin) Loader() *Loader {
	return &Loader{p: p}
}

// DB returns the connection pool of an initialized session.
func (p *Plugin) DB() (*sql.DB, error) {
	return p.conn()
}

func (p *Plugin) conn() (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil, ErrNotInitialized
	}
	return p.db, nil
}

type sessionLocker struct {
	p *Plugin
}

var _ Locker = (*sessionLocker)(nil)

func (l *sessionLocker) Lock(ctx context.Context) error {
	db, err := l.p.conn()
	if err != nil {
		return err
	}
	if err := l.p.locker.Lock(ctx, db); err != nil {
		return fmt.Errorf("%w: acquire %q in %s: %w", ErrLock, database.KeyLock, l.p.store.Tablename(), err)
	}
	return nil
}

func (l *sessionLocker) Unlock(ctx context.Context) error {
	db, err := l.p.conn()
	if err != nil {
		return err
	}
	if err := l.p.locker.Unlock(ctx, db); err != nil {
		return fmt.Errorf("%w: release %q in %s: %w", ErrLock, database.KeyLock, l.p.store.Tablename(), err)
	}
	return nil
}

func (l *sessionLocker) ForceUnlock(ctx context.Context) error {
	db, err := l.p.conn()
	if err != nil {
		return err
	}
	if err := l.p.locker.ForceUnlock(ctx, db); err != nil {
		return fmt.Errorf("%w: force release %q in %s: %w", ErrLock, database.KeyLock, l.p.store.Tablename(), err)
	}
	l.p.config.logger.Printf("%s: lock on %s force released", Name, l.p.store.Tablename())
	return nil
}
