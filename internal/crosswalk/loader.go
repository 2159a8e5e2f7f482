package crosswalk

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/fetcher"
	"github.com/plansight/enroll-cli/internal/sources"
)

// Mapping links a plan's identity in year Y to its identity in Y-1.
type Mapping struct {
	PrevContractID string
	PrevPlanID     string
	CurrContractID string
	CurrPlanID     string
	SNPType        string
}

// Key identifies a plan within one year.
type Key struct {
	ContractID string
	PlanID     string
}

// Table is the crosswalk for one transition year, indexed by the
// current-year identity.
type Table struct {
	Year       int
	SourceName string
	Columns    []string
	Mappings   map[Key]Mapping
	// AmbiguousCount counts current-year identities that appeared more
	// than once with conflicting previous identities. The first complete
	// mapping wins; a mapping with a previous plan replaces one without.
	AmbiguousCount int
	Warnings       []string
}

// Lookup returns the previous-year identity for a current-year plan.
func (t *Table) Lookup(contractID, planID string) (Mapping, bool) {
	m, ok := t.Mappings[Key{ContractID: contractID, PlanID: planID}]
	return m, ok
}

// Load fetches and parses the crosswalk covering the transition into
// the given year. Returns sources.ErrSourceUnavailable when no
// crosswalk was published for that year.
func Load(ctx context.Context, f fetcher.Fetcher, year int) (*Table, error) {
	log := zap.L().With(zap.String("component", "crosswalk"), zap.Int("year", year))

	rows, name, err := fetchRows(ctx, f, year)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Wrapf(sources.ErrSchemaMismatch, "crosswalk: %s has no data rows", name)
	}

	cols, warnings, err := resolveColumns(rows[0], year)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Year:       year,
		SourceName: name,
		Columns:    rows[0],
		Mappings:   make(map[Key]Mapping, len(rows)-1),
		Warnings:   warnings,
	}
	for _, row := range rows[1:] {
		m := Mapping{
			PrevContractID: get(row, cols.prevContract),
			PrevPlanID:     sources.PadPlanID(get(row, cols.prevPlan)),
			CurrContractID: get(row, cols.currContract),
			CurrPlanID:     sources.PadPlanID(get(row, cols.currPlan)),
			SNPType:        get(row, cols.snpType),
		}
		// Rows without a current-year identity carry nothing to link.
		if m.CurrContractID == "" {
			continue
		}
		key := Key{ContractID: m.CurrContractID, PlanID: m.CurrPlanID}
		if prev, dup := t.Mappings[key]; dup {
			if prev.PrevContractID == m.PrevContractID && prev.PrevPlanID == m.PrevPlanID {
				continue
			}
			t.AmbiguousCount++
			if prev.PrevPlanID == "" && m.PrevPlanID != "" {
				t.Mappings[key] = m
			}
			continue
		}
		t.Mappings[key] = m
	}

	log.Debug("crosswalk loaded",
		zap.String("source", name),
		zap.Int("mappings", len(t.Mappings)),
		zap.Int("ambiguous", t.AmbiguousCount))
	return t, nil
}

func fetchRows(ctx context.Context, f fetcher.Fetcher, year int) ([][]string, string, error) {
	for _, key := range sources.CrosswalkKeys(year) {
		data, err := f.Fetch(ctx, key)
		if eris.Is(err, fetcher.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", eris.Wrapf(err, "crosswalk: fetch %s", key)
		}
		name := key
		if strings.HasSuffix(strings.ToLower(key), ".zip") {
			entry, content, zerr := fetcher.PickZIPEntry(data, "crosswalk", ".csv", ".txt", ".xlsx")
			if zerr != nil {
				return nil, "", eris.Wrapf(zerr, "crosswalk: unzip %s", key)
			}
			name = key + "!" + entry
			data = content
		}
		var rows [][]string
		var perr error
		if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
			rows, perr = fetcher.ReadXLSX(data, fetcher.XLSXOptions{})
		} else {
			rows, perr = fetcher.ReadCSV(data, fetcher.CSVOptions{Latin1: true, TrimSpace: true})
		}
		if perr != nil {
			return nil, "", eris.Wrapf(perr, "crosswalk: read %s", name)
		}
		return rows, name, nil
	}
	return nil, "", eris.Wrapf(sources.ErrSourceUnavailable, "crosswalk: no crosswalk published for %d", year)
}

func get(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
