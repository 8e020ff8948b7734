package cli

import (
	"fmt"
	"io"
	"io/fs"
	"time"
)

// Options are used to configure the command execution and are passed to the Run or Main function.
type Options interface {
	apply(*state) error
}

type optionFunc func(*state) error

func (f optionFunc) apply(s *state) error { return f(s) }

// WithStdout sets the writer for stdout.
func WithStdout(w io.Writer) Options {
	return optionFunc(func(s *state) error {
		if w == nil {
			return fmt.Errorf("stdout cannot be nil")
		}
		if s.stdout != nil {
			return fmt.Errorf("stdout already set")
		}
		s.stdout = w
		return nil
	})
}

// WithStderr sets the writer for stderr.
func WithStderr(w io.Writer) Options {
	return optionFunc(func(s *state) error {
		if w == nil {
			return fmt.Errorf("stderr cannot be nil")
		}
		if s.stderr != nil {
			return fmt.Errorf("stderr already set")
		}
		s.stderr = w
		return nil
	})
}

// WithFilesystem sets the filesystem migration files are read from. A typical use case is to use
// [embed.FS] or [fstest.MapFS]. File arguments are then paths within fsys.
func WithFilesystem(fsys fs.FS) Options {
	return optionFunc(func(s *state) error {
		if fsys == nil {
			return fmt.Errorf("filesystem cannot be nil")
		}
		if s.fsys != nil {
			return fmt.Errorf("filesystem already set")
		}
		s.fsys = fsys
		return nil
	})
}

// WithNow sets the clock used to name and date new migration files.
func WithNow(now func() time.Time) Options {
	return optionFunc(func(s *state) error {
		if now == nil {
			return fmt.Errorf("now cannot be nil")
		}
		s.now = now
		return nil
	})
}
