package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	DefaultMigrationDir = "migrations"
	DefaultConfigFile   = "migrat.yaml"
)

// An EnvVar is an environment variable Name=Value.
type EnvVar struct {
	Name  string
	Value string
}

// envKeys maps environment variables to option keys.
var envKeys = []struct {
	env    string
	key    string
	secret bool
}{
	{env: "MIGRAT_DIALECT", key: "dialect"},
	{env: "MIGRAT_DSN", key: "dsn", secret: true},
	{env: "MIGRAT_USER", key: "user"},
	{env: "MIGRAT_PASSWORD", key: "password", secret: true},
	{env: "MIGRAT_HOST", key: "host"},
	{env: "MIGRAT_PORT", key: "port"},
	{env: "MIGRAT_DATABASE", key: "database"},
	{env: "MIGRAT_ENCRYPT", key: "encrypt"},
	{env: "MIGRAT_SCHEMA", key: "migratSchema"},
	{env: "MIGRAT_TABLE", key: "migratTable"},
	{env: "MIGRAT_ENABLE_LOCKING", key: "enableLocking"},
	{env: "MIGRAT_ENABLE_STATE_STORAGE", key: "enableStateStorage"},
	{env: "MIGRAT_LOCK_INTERVAL", key: "lockInterval"},
	{env: "MIGRAT_LOCK_MAX_ATTEMPTS", key: "lockMaxAttempts"},
	{env: "MIGRAT_LOCK_MAX_WAIT", key: "lockMaxWait"},
	{env: "MIGRAT_ENVSUB", key: "envsub"},
}

// LoadEnvFile loads environment variables from a .env file. Variables already set in the
// environment win. A missing file is not an error when optional is true.
func LoadEnvFile(path string, optional bool) error {
	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// Load returns the option bag. Values come from the YAML file at path, when path is not empty,
// overridden by MIGRAT_* environment variables. A missing file is not an error when optional is
// true.
func Load(path string, optional bool) (map[string]any, error) {
	bag := make(map[string]any)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &bag); err != nil {
				return nil, fmt.Errorf("parse config file %q: %w", path, err)
			}
			if bag == nil {
				// An empty document unmarshals to a nil map.
				bag = make(map[string]any)
			}
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	for _, e := range envKeys {
		if v := os.Getenv(e.env); v != "" {
			bag[e.key] = v
		}
	}
	return bag, nil
}

// List returns the MIGRAT_* environment variables and their current values. Secrets are masked.
func List() []EnvVar {
	vars := make([]EnvVar, 0, len(envKeys))
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if e.secret && v != "" {
			v = "********"
		}
		vars = append(vars, EnvVar{Name: e.env, Value: v})
	}
	return vars
}

// SplitKeyValuesIntoMap parses "key1=value1,key2=value2" into a map. Entries without "=" are
// skipped.
func SplitKeyValuesIntoMap(s string) map[string]string {
	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			m[k] = strings.TrimSpace(v)
		}
	}
	return m
}

// envOr returns os.Getenv(key) if set, or else default.
func envOr(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		val = def
	}
	return val
}

// MigrationDir returns the directory holding migration files.
func MigrationDir() string {
	return envOr("MIGRAT_MIGRATION_DIR", DefaultMigrationDir)
}

// ConfigFile returns the path of the YAML config file.
func ConfigFile() string {
	return envOr("MIGRAT_CONFIG", DefaultConfigFile)
}
