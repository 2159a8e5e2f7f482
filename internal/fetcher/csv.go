package fetcher

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Delimiter rune // default ','
	// Latin1 decodes the input as ISO 8859-1. Historical government files
	// predate UTF-8 publishing and carry accented organization names.
	Latin1    bool
	TrimSpace bool
}

// ReadCSV parses an entire CSV file into rows of strings. Rows may have
// variable field counts; the caller resolves columns against the header.
func ReadCSV(data []byte, opts CSVOptions) ([][]string, error) {
	var r io.Reader = bytes.NewReader(data)
	if opts.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, record)
	}
	return rows, nil
}
