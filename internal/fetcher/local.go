package fetcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// LocalFetcher reads source files from a directory tree, treating the URI as
// a storage key relative to Root. Used for mirrored datasets and in tests.
type LocalFetcher struct {
	Root string
}

// Fetch reads the file at Root/uri. A missing file maps to ErrNotFound.
func (f *LocalFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "local: context cancelled")
	}

	data, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(uri)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "local: %s", uri)
		}
		return nil, eris.Wrapf(err, "local: read %s", uri)
	}
	return data, nil
}
