// Package entity resolves plan identities across years. A plan keeps
// one stable entity even when its contract or plan number changes,
// provided the annual crosswalk links the old and new identities.
package entity

import (
	"sort"

	"github.com/plansight/enroll-cli/internal/crosswalk"
)

// Index holds the loaded crosswalk tables, keyed by the year each
// table transitions into, plus the set of plan identities observed in
// each year's enrollment data.
type Index struct {
	tables   map[int]*crosswalk.Table
	observed map[int]map[crosswalk.Key]struct{}
}

func NewIndex() *Index {
	return &Index{
		tables:   make(map[int]*crosswalk.Table),
		observed: make(map[int]map[crosswalk.Key]struct{}),
	}
}

// AddTable registers the crosswalk covering the transition into year.
func (ix *Index) AddTable(t *crosswalk.Table) {
	ix.tables[t.Year] = t
}

// Observe records that a plan identity appeared in a year's data.
func (ix *Index) Observe(year int, contractID, planID string) {
	m, ok := ix.observed[year]
	if !ok {
		m = make(map[crosswalk.Key]struct{})
		ix.observed[year] = m
	}
	m[crosswalk.Key{ContractID: contractID, PlanID: planID}] = struct{}{}
}

// ObservedIn reports whether the identity appeared in a year's data.
func (ix *Index) ObservedIn(year int, contractID, planID string) bool {
	_, ok := ix.observed[year][crosswalk.Key{ContractID: contractID, PlanID: planID}]
	return ok
}

// HasTable reports whether a crosswalk was loaded for the transition
// into year.
func (ix *Index) HasTable(year int) bool {
	_, ok := ix.tables[year]
	return ok
}

// Lookup resolves a year's identity to its previous-year identity.
func (ix *Index) Lookup(year int, contractID, planID string) (crosswalk.Mapping, bool) {
	t, ok := ix.tables[year]
	if !ok {
		return crosswalk.Mapping{}, false
	}
	return t.Lookup(contractID, planID)
}

// YearsWithCrosswalk returns the transition years with a loaded table,
// ascending.
func (ix *Index) YearsWithCrosswalk() []int {
	years := make([]int, 0, len(ix.tables))
	for y := range ix.tables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// AmbiguousCount sums the duplicate-identity conflicts across all
// loaded tables.
func (ix *Index) AmbiguousCount() int {
	var n int
	for _, t := range ix.tables {
		n += t.AmbiguousCount
	}
	return n
}

// LatestYear returns the most recent year with observed identities.
func (ix *Index) LatestYear() (int, bool) {
	var latest int
	var found bool
	for y := range ix.observed {
		if !found || y > latest {
			latest = y
			found = true
		}
	}
	return latest, found
}

// IdentitiesIn returns the plan identities observed in a year, sorted
// for deterministic iteration.
func (ix *Index) IdentitiesIn(year int) []crosswalk.Key {
	keys := make([]crosswalk.Key, 0, len(ix.observed[year]))
	for k := range ix.observed[year] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ContractID != keys[j].ContractID {
			return keys[i].ContractID < keys[j].ContractID
		}
		return keys[i].PlanID < keys[j].PlanID
	})
	return keys
}
