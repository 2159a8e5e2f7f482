// Package sources loads the raw regulatory publications that feed the
// warehouse: monthly enrollment by plan, contract/plan characteristics,
// special-needs-plan rosters, and service-area files. Each loader
// resolves the publication's column headers against the layouts that
// have appeared over the years and fails closed when none match.
package sources

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrSourceUnavailable indicates the publication does not exist for the
// requested period. Callers treat this as a recorded gap, not a failure.
var ErrSourceUnavailable = eris.New("sources: source unavailable for period")

// ErrSchemaMismatch indicates the file was fetched but its header row
// matches no known layout. Loading stops rather than guessing.
var ErrSchemaMismatch = eris.New("sources: unrecognized column layout")

// header maps normalized column names to their positional index.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, c := range row {
		h[normalizeCol(c)] = i
	}
	return h
}

func normalizeCol(c string) string {
	c = strings.TrimSpace(strings.ToLower(c))
	c = strings.ReplaceAll(c, "_", " ")
	return strings.Join(strings.Fields(c), " ")
}

// find returns the index of the first exactly-matching candidate.
func (h header) find(candidates ...string) (int, bool) {
	for _, c := range candidates {
		if i, ok := h[normalizeCol(c)]; ok {
			return i, true
		}
	}
	return -1, false
}

// findFuzzy returns the leftmost column whose normalized name contains
// all of the given substrings. Used as a fallback when exact names
// drift between publication years.
func (h header) findFuzzy(substrings ...string) (int, bool) {
	best := -1
	for name, i := range h {
		all := true
		for _, s := range substrings {
			if !strings.Contains(name, s) {
				all = false
				break
			}
		}
		if all && (best == -1 || i < best) {
			best = i
		}
	}
	return best, best >= 0
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// PadPlanID left-pads a plan identifier with zeros to three digits.
// "1" and "001" name the same plan across publications.
func PadPlanID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	for len(id) < 3 {
		id = "0" + id
	}
	return id
}

// ParseEnrollment parses a published enrollment count. Counts under the
// suppression floor are published as "*"; those return (0, true, nil).
func ParseEnrollment(s string) (count int64, suppressed bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" || s == "." {
		return 0, s == "*", nil
	}
	s = strings.ReplaceAll(s, ",", "")
	n, perr := strconv.ParseInt(s, 10, 64)
	if perr != nil {
		return 0, false, eris.Wrapf(perr, "sources: parse enrollment %q", s)
	}
	return n, false, nil
}
