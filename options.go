package migrat

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pressly/migrat-mssql/database"
	"github.com/pressly/migrat-mssql/lock"
)

const (
	defaultDialect = "mssql"
	defaultHost    = "localhost"
	defaultSchema  = "migrat"
	defaultTable   = "migrat"
)

var defaultPorts = map[database.Dialect]int{
	database.DialectMSSQL:    1433,
	database.DialectPostgres: 5432,
	database.DialectMySQL:    3306,
	database.DialectVertica:  5433,
}

// Options is the option bag the engine hands to the plugin. Field names follow the keys of the
// bag; see [DecodeOptions].
type Options struct {
	// Dialect selects the database and driver.
	//
	// Default: "mssql"
	Dialect string `mapstructure:"dialect"`
	// DSN is a driver connection string. When set, it replaces User, Password, Host, Port,
	// Database and Encrypt.
	DSN      string `mapstructure:"dsn"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Default: "localhost"
	Host string `mapstructure:"host"`
	// Default: 1433 for SQL Server, the usual port of the dialect otherwise.
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Encrypt  bool   `mapstructure:"encrypt"`

	// MigratSchema and MigratTable name the metadata table.
	//
	// Default: "migrat" and "migrat"
	MigratSchema string `mapstructure:"migratSchema"`
	MigratTable  string `mapstructure:"migratTable"`

	EnableLocking      bool `mapstructure:"enableLocking"`
	EnableStateStorage bool `mapstructure:"enableStateStorage"`

	// LockInterval is the delay between two lock attempts. Plain numbers are milliseconds.
	//
	// Default: 500ms
	LockInterval time.Duration `mapstructure:"lockInterval"`
	// LockMaxAttempts bounds the number of lock attempts. Zero means unbounded.
	LockMaxAttempts uint64 `mapstructure:"lockMaxAttempts"`
	// LockMaxWait bounds the total time spent waiting for the lock. Zero means unbounded.
	LockMaxWait time.Duration `mapstructure:"lockMaxWait"`

	// Envsub enables ${VAR} substitution in migration files.
	Envsub bool `mapstructure:"envsub"`
}

// DefaultOptions returns the default Options.
func DefaultOptions() *Options {
	return &Options{
		Dialect:      defaultDialect,
		Host:         defaultHost,
		MigratSchema: defaultSchema,
		MigratTable:  defaultTable,
		LockInterval: lock.DefaultRetryInterval,
	}
}

// DecodeOptions decodes an option bag into Options, on top of [DefaultOptions]. Keys match field
// names case-insensitively and values are converted weakly, so "true", "1433" and "2s" are
// accepted where a bool, an int or a duration is expected. Unknown keys are ignored; the bag is
// shared with the engine.
func DecodeOptions(bag map[string]any) (*Options, error) {
	opts := DefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           opts,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(bag); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

// millisecondsHookFunc reads plain numbers, and strings holding one, as milliseconds when decoding into a time.Duration.
func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		case reflect.String:
			// "500" from an environment variable; "500ms" is left to the next hook.
			if ms, err := strconv.ParseFloat(reflect.ValueOf(data).String(), 64); err == nil {
				return time.Duration(ms * float64(time.Millisecond)), nil
			}
		}
		return data, nil
	}
}

func (o *Options) dialect() (database.Dialect, error) {
	return database.ParseDialect(o.Dialect)
}

// driverAlias is the lower-cased dialect as configured, which keeps "mymysql" apart from "mysql".
func (o *Options) driverAlias() string {
	return strings.ToLower(strings.TrimSpace(o.Dialect))
}

func (o *Options) port(d database.Dialect) int {
	if o.Port != 0 {
		return o.Port
	}
	return defaultPorts[d]
}

func (o *Options) host() string {
	if o.Host == "" {
		return defaultHost
	}
	return o.Host
}

func (o *Options) retryPolicy() lock.RetryPolicy {
	interval := o.LockInterval
	if interval == 0 {
		interval = lock.DefaultRetryInterval
	}
	return lock.RetryPolicy{
		Interval:    interval,
		MaxAttempts: o.LockMaxAttempts,
		MaxWait:     o.LockMaxWait,
	}
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options must not be nil")
	}
	d, err := opts.dialect()
	if err != nil {
		return err
	}
	if opts.MigratSchema == "" {
		return errors.New("migratSchema must not be empty")
	}
	if opts.MigratTable == "" {
		return errors.New("migratTable must not be empty")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return fmt.Errorf("port %d out of range", opts.Port)
	}
	if opts.LockInterval < 0 || opts.LockMaxWait < 0 {
		return errors.New("lock durations must not be negative")
	}
	if opts.DSN != "" {
		return nil
	}
	switch d {
	case database.DialectTurso:
		return errors.New("dsn must be set for turso")
	case database.DialectSQLite3:
		if opts.Database == "" {
			return errors.New("database or dsn must be set")
		}
	default:
		if opts.User == "" {
			return errors.New("user or dsn must be set")
		}
		if opts.Database == "" {
			return errors.New("database or dsn must be set")
		}
	}
	return nil
}

// PluginOption is a configuration option for a Plugin.
type PluginOption interface {
	apply(*config) error
}

// WithLogger sets the logger used for plugin output.
//
// If WithLogger is not called, output goes to the standard library logger.
func WithLogger(l Logger) PluginOption {
	return configFunc(func(c *config) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = l
		return nil
	})
}

// WithLockLogger sets the structured logger of the migration lock.
//
// If WithLockLogger is not called, the lock logs nothing.
func WithLockLogger(l *slog.Logger) PluginOption {
	return configFunc(func(c *config) error {
		if l == nil {
			return errors.New("lock logger must not be nil")
		}
		c.lockOptions = append(c.lockOptions, lock.WithLogger(l))
		return nil
	})
}

// WithRegisterer registers the lock metrics with reg.
func WithRegisterer(reg prometheus.Registerer) PluginOption {
	return configFunc(func(c *config) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		c.lockOptions = append(c.lockOptions, lock.WithRegisterer(reg))
		return nil
	})
}

// WithFilesystem sets the filesystem the loader reads migration files from.
//
// If WithFilesystem is not called, files are read from disk.
func WithFilesystem(fsys fs.FS) PluginOption {
	return configFunc(func(c *config) error {
		if fsys == nil {
			return errors.New("filesystem must not be nil")
		}
		c.fsys = fsys
		return nil
	})
}

type config struct {
	logger      Logger
	fsys        fs.FS
	lockOptions []lock.TableLockerOption
}

type configFunc func(*config) error

func (f configFunc) apply(cfg *config) error {
	return f(cfg)
}
