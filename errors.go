package migrat

import "errors"

var (
	// ErrConnection is returned when the database cannot be reached with the configured options.
	ErrConnection = errors.New("unable to connect")

	// ErrBootstrap is returned when the metadata schema or table cannot be provisioned.
	ErrBootstrap = errors.New("unable to bootstrap metadata table")

	// ErrQuery is returned when reading or writing the metadata table fails.
	ErrQuery = errors.New("metadata query failed")

	// ErrLock is returned when the lock cannot be acquired or released.
	ErrLock = errors.New("lock failed")

	// ErrExec is returned when a migration query fails.
	ErrExec = errors.New("migration query failed")

	// ErrVerifyFailed is returned when a check query returns no rows.
	ErrVerifyFailed = errors.New("check failed")

	// ErrNotInitialized is returned by operations on a plugin that was not initialized, or was
	// already terminated.
	ErrNotInitialized = errors.New("plugin not initialized")

	// ErrParse is returned when a migration file cannot be parsed.
	ErrParse = errors.New("unable to parse migration")
)
