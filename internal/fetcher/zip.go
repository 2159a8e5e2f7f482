package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// PickZIPEntry opens an in-memory ZIP archive and returns the name and
// contents of the data file inside. Entries whose lowercased name matches
// prefer are chosen first; otherwise the first entry with one of the given
// extensions wins.
func PickZIPEntry(data []byte, prefer string, exts ...string) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}

	var fallback *zip.File
	var chosen *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(f.Name)
		if !hasAnySuffix(name, exts) {
			continue
		}
		if prefer != "" && strings.Contains(name, prefer) {
			chosen = f
			break
		}
		if fallback == nil {
			fallback = f
		}
	}
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		return "", nil, eris.Errorf("zip: no data file found (want %v)", exts)
	}

	rc, err := chosen.Open()
	if err != nil {
		return "", nil, eris.Wrapf(err, "zip: open entry %s", chosen.Name)
	}
	defer rc.Close() //nolint:errcheck

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, eris.Wrapf(err, "zip: read entry %s", chosen.Name)
	}
	return chosen.Name, content, nil
}

func hasAnySuffix(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
