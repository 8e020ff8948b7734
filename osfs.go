package migrat

import (
	"io/fs"
	"os"
	"path/filepath"
)

// osFS wraps functions working with os filesystem to implement fs.FS interfaces. Unlike os.DirFS
// it accepts absolute paths, which is what the engine hands to the loader.
type osFS struct{}

var _ fs.FS = (*osFS)(nil)

func (osFS) Open(name string) (fs.File, error) { return os.Open(filepath.FromSlash(name)) }
