package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mfridman/xflag"

	migrat "github.com/pressly/migrat-mssql"
	"github.com/pressly/migrat-mssql/internal/cfg"
)

func newFlagSet(st *state, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("migrat-mssql "+name, flag.ContinueOnError)
	fs.SetOutput(st.stderr)
	return fs
}

func runInit(ctx context.Context, st *state, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("init: unexpected arguments %q", args)
	}
	p, err := st.openPlugin(ctx, nil)
	if err != nil {
		return err
	}
	defer p.Terminate()
	fmt.Fprintln(st.stdout, "migrat: metadata table ready")
	return nil
}

func runLock(ctx context.Context, st *state, args []string) error {
	fs := newFlagSet(st, "lock")
	hold := fs.Duration("hold", 0, "release the lock after this long instead of waiting for an interrupt")
	if err := xflag.ParseToEnd(fs, args); err != nil {
		return err
	}
	p, err := st.openPlugin(ctx, func(o *migrat.Options) { o.EnableLocking = true })
	if err != nil {
		return err
	}
	defer p.Terminate()
	locker, _ := p.Locker()
	if err := locker.Lock(ctx); err != nil {
		return err
	}
	fmt.Fprintln(st.stdout, "migrat: lock acquired")
	if *hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*hold):
		}
	} else {
		<-ctx.Done()
	}
	// ctx may be canceled by now; the release must still go through.
	if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	fmt.Fprintln(st.stdout, "migrat: lock released")
	return nil
}

func runUnlock(ctx context.Context, st *state, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unlock: unexpected arguments %q", args)
	}
	p, err := st.openPlugin(ctx, func(o *migrat.Options) { o.EnableLocking = true })
	if err != nil {
		return err
	}
	defer p.Terminate()
	locker, _ := p.Locker()
	if err := locker.ForceUnlock(ctx); err != nil {
		return err
	}
	fmt.Fprintln(st.stdout, "migrat: lock removed")
	return nil
}

func runState(ctx context.Context, st *state, args []string) error {
	if len(args) == 0 {
		return errors.New("state: missing subcommand, want get or set")
	}
	switch {
	case args[0] == "get" && len(args) == 1:
	case args[0] == "set" && len(args) == 2:
	default:
		return fmt.Errorf("state: usage: %s", usageState)
	}
	p, err := st.openPlugin(ctx, func(o *migrat.Options) { o.EnableStateStorage = true })
	if err != nil {
		return err
	}
	defer p.Terminate()
	store, _ := p.StateStore()
	if args[0] == "set" {
		return store.Set(ctx, args[1])
	}
	value, found, err := store.Get(ctx)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("state: no state stored")
	}
	fmt.Fprintln(st.stdout, value)
	return nil
}

func runApply(ctx context.Context, st *state, args []string) error {
	return runMigration(ctx, st, "apply", usageApply, args, func(ctx context.Context, ex *migrat.Executors) (bool, error) {
		if ex.Apply == nil {
			return false, nil
		}
		if err := ex.Apply(ctx); err != nil {
			return true, err
		}
		if ex.Verify != nil {
			return true, ex.Verify(ctx)
		}
		return true, nil
	})
}

func runRevert(ctx context.Context, st *state, args []string) error {
	return runMigration(ctx, st, "revert", usageRevert, args, func(ctx context.Context, ex *migrat.Executors) (bool, error) {
		if ex.Revert == nil {
			return false, nil
		}
		return true, ex.Revert(ctx)
	})
}

func runVerify(ctx context.Context, st *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify: usage: %s", usageVerify)
	}
	p, err := st.openPlugin(ctx, nil)
	if err != nil {
		return err
	}
	defer p.Terminate()
	ex, err := p.Loader().Load(ctx, args[0])
	if err != nil {
		return err
	}
	if ex.Verify == nil {
		fmt.Fprintf(st.stdout, "migrat: %s has no check section\n", args[0])
		return nil
	}
	if err := ex.Verify(ctx); err != nil {
		return err
	}
	fmt.Fprintf(st.stdout, "migrat: %s verified\n", args[0])
	return nil
}

// runMigration loads one file and runs fn on its executors, under the lock unless -no-lock is
// set or locking is disabled. fn reports whether there was anything to run.
func runMigration(
	ctx context.Context,
	st *state,
	name string,
	usage string,
	args []string,
	fn func(context.Context, *migrat.Executors) (bool, error),
) (retErr error) {
	fs := newFlagSet(st, name)
	noLock := fs.Bool("no-lock", false, "do not take the migration lock")
	if err := xflag.ParseToEnd(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s: usage: %s", name, usage)
	}
	file := fs.Arg(0)
	p, err := st.openPlugin(ctx, nil)
	if err != nil {
		return err
	}
	defer p.Terminate()
	ex, err := p.Loader().Load(ctx, file)
	if err != nil {
		return err
	}
	if locker, ok := p.Locker(); ok && !*noLock {
		if err := locker.Lock(ctx); err != nil {
			return err
		}
		defer func() {
			if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				retErr = errors.Join(retErr, err)
			}
		}()
	}
	ran, err := fn(ctx, ex)
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, file, err)
	}
	if !ran {
		fmt.Fprintf(st.stdout, "migrat: %s: nothing to %s\n", file, name)
		return nil
	}
	fmt.Fprintf(st.stdout, "migrat: %s: %s done\n", file, name)
	return nil
}

var migrationName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func runCreate(ctx context.Context, st *state, args []string) error {
	fs := newFlagSet(st, "create")
	user := fs.String("user", os.Getenv("USER"), "author named in the file header")
	if err := xflag.ParseToEnd(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("create: usage: %s", usageCreate)
	}
	name := fs.Arg(0)
	if !migrationName.MatchString(name) {
		return fmt.Errorf("create: invalid migration name %q: use letters, digits, '_' and '-'", name)
	}
	now := st.now()
	source, err := migrat.Template(migrat.TemplateDetails{Timestamp: now, User: *user})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(st.dir, fmt.Sprintf("%s_%s%s", now.UTC().Format("20060102150405"), name, migrat.FileExtension))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(source); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(st.stdout, "migrat: created %s\n", path)
	return nil
}

func runEnv(ctx context.Context, st *state, args []string) error {
	if err := cfg.LoadEnvFile(st.envFile, true); err != nil {
		return err
	}
	for _, env := range cfg.List() {
		fmt.Fprintf(st.stdout, "%s=%q\n", env.Name, env.Value)
	}
	return nil
}

func runVersion(ctx context.Context, st *state, args []string) error {
	fmt.Fprintf(st.stdout, "%s %s\n", migrat.Name, migrat.Version())
	return nil
}
