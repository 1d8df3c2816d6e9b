package cli

import (
	"fmt"
	"os"

	"github.com/princepp/princepp/pkg/fs"
)

// OpenOutputFile opens path for append, creating it if necessary, so that
// disjoint --skip/--limit shards invoked separately can write into the
// same file without clobbering each other's output.
func OpenOutputFile(fsys fs.FS, path string) (fs.File, error) {
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOutputFileOpen, path, err)
	}

	return f, nil
}
