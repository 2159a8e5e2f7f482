// Package fetcher retrieves raw source files by storage URI and parses the
// CSV, XLSX, and ZIP containers they arrive in.
package fetcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound reports that the requested URI does not exist. Callers treat
// missing files as recoverable gaps, so this must be distinguishable from
// transport failures.
var ErrNotFound = eris.New("fetcher: not found")

// Fetcher retrieves the full contents of a source file by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Multi dispatches to a scheme-specific fetcher: http/https, ftp, or the
// local filesystem for everything else.
type Multi struct {
	HTTP  Fetcher
	FTP   Fetcher
	Local Fetcher
}

// Fetch routes the URI by scheme.
func (m *Multi) Fetch(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if m.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher configured for %s", uri)
		}
		return m.HTTP.Fetch(ctx, uri)
	case strings.HasPrefix(uri, "ftp://"):
		if m.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher configured for %s", uri)
		}
		return m.FTP.Fetch(ctx, uri)
	default:
		if m.Local == nil {
			return nil, eris.Errorf("fetcher: no local fetcher configured for %s", uri)
		}
		return m.Local.Fetch(ctx, uri)
	}
}
