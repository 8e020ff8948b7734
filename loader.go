package migrat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pressly/migrat-mssql/internal/sqlparser"
)

// FileExtension is the extension of the migration files handled by the loader.
const FileExtension = ".mssql"

// Loader turns migration files into Executors bound to the plugin's connection pool.
type Loader struct {
	p *Plugin
}

// Pattern is the glob of the files the loader handles.
func (l *Loader) Pattern() string {
	return "*" + FileExtension
}

// Load reads and parses the migration file at path.
func (l *Loader) Load(ctx context.Context, path string) (*Executors, error) {
	if !strings.EqualFold(filepath.Ext(path), FileExtension) {
		return nil, fmt.Errorf("%w: %q does not end in %s", ErrParse, path, FileExtension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := l.p.conn()
	if err != nil {
		return nil, err
	}
	q, err := sqlparser.ParseFromFS(l.p.config.fsys, filepath.ToSlash(path), sqlparser.WithEnvsub(l.p.opts.Envsub))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return Build(db, Queries{Up: q.Up, Down: q.Down, Check: q.Check}), nil
}
