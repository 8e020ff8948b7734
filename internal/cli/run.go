package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/pressly/migrat-mssql/internal/cfg"
)

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, st *state, args []string) error
}

// Usage lines quoted in command errors.
const (
	usageLock   = "lock [-hold DURATION]"
	usageState  = "state get | state set VALUE"
	usageApply  = "apply [-no-lock] FILE"
	usageRevert = "revert [-no-lock] FILE"
	usageVerify = "verify FILE"
	usageCreate = "create [-user NAME] NAME"
)

var commands = map[string]command{
	"init":    {usage: "init", summary: "Create the metadata schema and table", run: runInit},
	"lock":    {usage: usageLock, summary: "Acquire the migration lock and hold it until interrupted", run: runLock},
	"unlock":  {usage: "unlock", summary: "Remove the migration lock, whoever holds it", run: runUnlock},
	"state":   {usage: usageState, summary: "Read or write the global migration state", run: runState},
	"apply":   {usage: usageApply, summary: "Run the up section of FILE, then its check", run: runApply},
	"revert":  {usage: usageRevert, summary: "Run the down section of FILE", run: runRevert},
	"verify":  {usage: usageVerify, summary: "Run the check section of FILE", run: runVerify},
	"create":  {usage: usageCreate, summary: "Create a new migration file in -dir", run: runCreate},
	"env":     {usage: "env", summary: "Print the MIGRAT_* environment variables", run: runEnv},
	"version": {usage: "version", summary: "Print the plugin version", run: runVersion},
}

func run(ctx context.Context, args []string, opts ...Options) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic: %v", r)
		}
	}()
	st, err := newStateWithDefaults(opts...)
	if err != nil {
		return err
	}

	flags := flag.NewFlagSet("migrat-mssql", flag.ContinueOnError)
	flags.SetOutput(st.stderr)
	flags.Usage = func() { usage(st.stderr, flags) }
	flags.StringVar(&st.configFile, "config", cfg.ConfigFile(), "YAML config file (optional)")
	flags.StringVar(&st.envFile, "env-file", ".env", ".env file loaded before reading MIGRAT_* variables (optional)")
	flags.StringVar(&st.dir, "dir", cfg.MigrationDir(), "directory for new migration files")
	flags.StringVar(&st.overrides, "o", "", "comma-separated key=value options, e.g. dialect=sqlite3,dsn=app.db")
	flags.BoolVar(&st.verbose, "v", false, "log lock activity to stderr")
	// Global flags come before the command; the command parses the rest.
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}
	name := flags.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		flags.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
	return cmd.run(ctx, st, flags.Args()[1:])
}

func usage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprint(w, usagePrefix)
	flags.PrintDefaults()
	fmt.Fprint(w, "\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-30s %s\n", commands[name].usage, commands[name].summary)
	}
	fmt.Fprint(w, usageExamples)
}

var (
	usagePrefix = `Usage: migrat-mssql [OPTIONS] COMMAND [ARGS]

Connection options are read, in increasing precedence, from the .env file, the config file,
MIGRAT_* environment variables and the -o flag.

Options:
`

	usageExamples = `
Examples:
    migrat-mssql -o user=sa,password=secret,database=app init
    migrat-mssql apply migrations/20260101120000_add_users.mssql
    migrat-mssql state get
    migrat-mssql create add_users

    MIGRAT_DIALECT=sqlite3 MIGRAT_DSN=./app.db migrat-mssql init
`
)
