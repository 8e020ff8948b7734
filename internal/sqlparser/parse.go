package sqlparser

import (
	"fmt"
	"io/fs"
	"path"
)

// ParseFromFS opens filename in fsys and parses it.
func ParseFromFS(fsys fs.FS, filename string, opts ...Option) (_ *Queries, retErr error) {
	r, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	q, err := Parse(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path.Base(filename), err)
	}
	return q, nil
}
