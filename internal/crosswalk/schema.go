// Package crosswalk loads the annual plan crosswalk, the publication
// that maps each plan's identifier in one year to its identifier in
// the next. The column layout changed twice over the publication's
// life, so resolution is era-aware with a fuzzy fallback.
package crosswalk

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/sources"
)

// Era boundaries for the crosswalk column layout.
const (
	newSchemaFirstYear          = 2022
	intermediateSchemaFirstYear = 2013
)

// columns holds the resolved positions of the four identifier columns.
type columns struct {
	prevContract int
	prevPlan     int
	currContract int
	currPlan     int
	snpType      int // -1 when the layout does not publish it
}

type colSpec struct {
	exact []string
	fuzzy []string
}

type layout struct {
	name         string
	prevContract colSpec
	prevPlan     colSpec
	currContract colSpec
	currPlan     colSpec
}

// layoutFor returns the expected column layout for a crosswalk year.
func layoutFor(year int) layout {
	switch {
	case year >= newSchemaFirstYear:
		return layout{
			name:         "current",
			prevContract: colSpec{exact: []string{"PREVIOUS_CONTRACT_NUMBER"}, fuzzy: []string{"previous", "contract"}},
			prevPlan:     colSpec{exact: []string{"PREVIOUS_PLAN_ID"}, fuzzy: []string{"previous", "plan"}},
			currContract: colSpec{exact: []string{"CURRENT_CONTRACT_NUMBER"}, fuzzy: []string{"current", "contract"}},
			currPlan:     colSpec{exact: []string{"CURRENT_PLAN_ID"}, fuzzy: []string{"current", "plan"}},
		}
	case year >= intermediateSchemaFirstYear:
		return layout{
			name:         "intermediate",
			prevContract: colSpec{exact: []string{"Previous Contract ID"}, fuzzy: []string{"prev", "contract"}},
			prevPlan:     colSpec{exact: []string{"Previous Plan ID"}, fuzzy: []string{"prev", "plan"}},
			currContract: colSpec{exact: []string{"New Contract ID"}, fuzzy: []string{"new", "contract"}},
			currPlan:     colSpec{exact: []string{"New Plan ID"}, fuzzy: []string{"new", "plan"}},
		}
	default:
		return layout{
			name:         "legacy",
			prevContract: colSpec{exact: []string{"Old Contract Number"}, fuzzy: []string{"old", "contract"}},
			prevPlan:     colSpec{exact: []string{"Old Plan ID"}, fuzzy: []string{"old", "plan"}},
			currContract: colSpec{exact: []string{"New Contract Number"}, fuzzy: []string{"new", "contract"}},
			currPlan:     colSpec{exact: []string{"New Plan ID"}, fuzzy: []string{"new", "plan"}},
		}
	}
}

// resolveColumns matches a header row against the year's layout, exact
// names first, then substring fallback. A header that resolves neither
// way fails closed rather than guessing at identifier columns.
func resolveColumns(headerRow []string, year int) (columns, []string, error) {
	lay := layoutFor(year)
	norm := make([]string, len(headerRow))
	for i, c := range headerRow {
		norm[i] = normalize(c)
	}

	var warnings []string
	resolve := func(spec colSpec, what string) (int, error) {
		for _, want := range spec.exact {
			w := normalize(want)
			for i, c := range norm {
				if c == w {
					return i, nil
				}
			}
		}
		for i, c := range norm {
			all := true
			for _, sub := range spec.fuzzy {
				if !strings.Contains(c, sub) {
					all = false
					break
				}
			}
			if all {
				warnings = append(warnings, "crosswalk: "+what+" resolved by substring match to column "+headerRow[i])
				return i, nil
			}
		}
		return -1, eris.Wrapf(sources.ErrSchemaMismatch, "crosswalk: no %s column in %d (%s layout) header %v", what, year, lay.name, headerRow)
	}

	var cols columns
	var err error
	if cols.prevContract, err = resolve(lay.prevContract, "previous contract"); err != nil {
		return columns{}, warnings, err
	}
	if cols.prevPlan, err = resolve(lay.prevPlan, "previous plan"); err != nil {
		return columns{}, warnings, err
	}
	if cols.currContract, err = resolve(lay.currContract, "current contract"); err != nil {
		return columns{}, warnings, err
	}
	if cols.currPlan, err = resolve(lay.currPlan, "current plan"); err != nil {
		return columns{}, warnings, err
	}

	cols.snpType = -1
	for i, c := range norm {
		if c == "current snp type" || (strings.Contains(c, "snp") && strings.Contains(c, "type")) {
			cols.snpType = i
			break
		}
	}
	return cols, warnings, nil
}

func normalize(c string) string {
	c = strings.TrimSpace(strings.ToLower(c))
	c = strings.ReplaceAll(c, "_", " ")
	return strings.Join(strings.Fields(c), " ")
}
