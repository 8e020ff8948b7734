package cli

import (
	"context"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"time"

	migrat "github.com/pressly/migrat-mssql"
	"github.com/pressly/migrat-mssql/internal/cfg"
)

// state holds the state of the CLI and is passed to each command. It is used to configure the
// output streams, the filesystem and the clock, and carries the global flags.
type state struct {
	stdout io.Writer
	stderr io.Writer
	fsys   fs.FS
	now    func() time.Time

	configFile string
	envFile    string
	dir        string
	overrides  string
	verbose    bool
}

func newStateWithDefaults(opts ...Options) (*state, error) {
	st := &state{}
	for _, opt := range opts {
		if err := opt.apply(st); err != nil {
			return nil, err
		}
	}
	// Set defaults if not set by the caller
	if st.stdout == nil {
		st.stdout = os.Stdout
	}
	if st.stderr == nil {
		st.stderr = os.Stderr
	}
	if st.now == nil {
		st.now = time.Now
	}
	return st, nil
}

// options assembles the option bag from the .env file, the config file, the environment and the
// -o flag, in increasing precedence.
func (st *state) options() (*migrat.Options, error) {
	if err := cfg.LoadEnvFile(st.envFile, true); err != nil {
		return nil, err
	}
	bag, err := cfg.Load(st.configFile, true)
	if err != nil {
		return nil, err
	}
	for k, v := range cfg.SplitKeyValuesIntoMap(st.overrides) {
		bag[k] = v
	}
	return migrat.DecodeOptions(bag)
}

// openPlugin builds and initializes a plugin session. adjust may change the options first.
func (st *state) openPlugin(ctx context.Context, adjust func(*migrat.Options)) (*migrat.Plugin, error) {
	opts, err := st.options()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(opts)
	}
	pluginOpts := []migrat.PluginOption{
		migrat.WithLogger(log.New(st.stderr, "", log.LstdFlags)),
	}
	if st.fsys != nil {
		pluginOpts = append(pluginOpts, migrat.WithFilesystem(st.fsys))
	}
	if st.verbose {
		handler := slog.NewTextHandler(st.stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		pluginOpts = append(pluginOpts, migrat.WithLockLogger(slog.New(handler)))
	}
	p, err := migrat.New(opts, pluginOpts...)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
