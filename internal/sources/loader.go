package sources

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/fetcher"
)

// SourceMeta identifies the concrete file a loader resolved and the
// table shape parsed out of it, for audit registration.
type SourceMeta struct {
	Name    string
	Columns []string
	Rows    int
}

func metaFor(name string, rows [][]string) SourceMeta {
	return SourceMeta{Name: name, Columns: rows[0], Rows: len(rows) - 1}
}

// fetchTable tries candidate keys in order and returns the parsed rows
// of the first hit. ZIP archives are unwrapped to their CSV entry;
// files are decoded as latin-1 since older publications predate UTF-8.
func fetchTable(ctx context.Context, f fetcher.Fetcher, keys []string, prefer string) ([][]string, string, error) {
	log := zap.L().With(zap.String("component", "sources"))
	for _, key := range keys {
		data, err := f.Fetch(ctx, key)
		if eris.Is(err, fetcher.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", eris.Wrapf(err, "sources: fetch %s", key)
		}
		name := key
		if strings.HasSuffix(strings.ToLower(key), ".zip") {
			entry, content, zerr := fetcher.PickZIPEntry(data, prefer, ".csv", ".txt")
			if zerr != nil {
				return nil, "", eris.Wrapf(zerr, "sources: unzip %s", key)
			}
			name = key + "!" + entry
			data = content
		}
		rows, cerr := fetcher.ReadCSV(data, fetcher.CSVOptions{Latin1: true, TrimSpace: true})
		if cerr != nil {
			return nil, "", eris.Wrapf(cerr, "sources: read %s", name)
		}
		if len(rows) < 2 {
			return nil, "", eris.Wrapf(ErrSchemaMismatch, "sources: %s has no data rows", name)
		}
		log.Debug("source fetched", zap.String("key", key), zap.Int("rows", len(rows)-1))
		return rows, name, nil
	}
	return nil, "", eris.Wrapf(ErrSourceUnavailable, "sources: none of %d candidate keys exist", len(keys))
}
