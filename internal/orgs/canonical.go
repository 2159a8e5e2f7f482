package orgs

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/model"
)

// Observation is one (raw name, year, contract) sighting of a parent
// organization in the source data.
type Observation struct {
	RawName    string
	Year       int
	ContractID string
}

// Canonicalizer groups raw parent-organization names into stable
// identities using the corporate history.
type Canonicalizer struct {
	History *History
}

func NewCanonicalizer(h *History) *Canonicalizer {
	if h == nil {
		h = DefaultHistory()
	}
	return &Canonicalizer{History: h}
}

// Canonical resolves a raw name observed in a given year to its
// canonical organization name. Spelling variations resolve through
// the variation table; acquisitions apply only from their event year
// onward, so pre-acquisition observations keep the acquired name as
// their own bucket.
func (c *Canonicalizer) Canonical(rawName string, year int) string {
	name := c.History.canonicalSpelling(rawName)
	// Acquisition chains resolve transitively (an org acquired by an
	// org that was itself later acquired).
	for range c.History.Events {
		next, changed := c.applyAcquisition(name, year)
		if !changed {
			break
		}
		name = next
	}
	return name
}

func (c *Canonicalizer) applyAcquisition(name string, year int) (string, bool) {
	key := Normalize(name)
	for _, ev := range c.History.Events {
		if ev.Type != EventAcquisition || year < ev.Year {
			continue
		}
		if Normalize(ev.FromName) == key || Normalize(c.History.canonicalSpelling(ev.FromName)) == key {
			return c.History.canonicalSpelling(ev.ToName), true
		}
	}
	return name, false
}

// BuildIdentities groups the observations into canonical identities.
// The result is deterministic for a given input: identities sort by
// canonical name, name history by first year of use.
func (c *Canonicalizer) BuildIdentities(observations []Observation) []model.ParentOrgIdentity {
	log := zap.L().With(zap.String("component", "orgs"))

	type group struct {
		canonical string
		nameYears map[string]map[int]struct{}
		contracts map[string]struct{}
		firstYear int
		lastYear  int
	}
	groups := make(map[string]*group)

	for _, obs := range observations {
		raw := strings.Join(strings.Fields(obs.RawName), " ")
		if raw == "" {
			continue
		}
		canonical := c.Canonical(raw, obs.Year)
		g, ok := groups[canonical]
		if !ok {
			g = &group{
				canonical: canonical,
				nameYears: make(map[string]map[int]struct{}),
				contracts: make(map[string]struct{}),
				firstYear: obs.Year,
				lastYear:  obs.Year,
			}
			groups[canonical] = g
		}
		if obs.Year < g.firstYear {
			g.firstYear = obs.Year
		}
		if obs.Year > g.lastYear {
			g.lastYear = obs.Year
		}
		years, ok := g.nameYears[raw]
		if !ok {
			years = make(map[int]struct{})
			g.nameYears[raw] = years
		}
		years[obs.Year] = struct{}{}
		if obs.ContractID != "" {
			g.contracts[obs.ContractID] = struct{}{}
		}
	}

	identities := make([]model.ParentOrgIdentity, 0, len(groups))
	for _, g := range groups {
		id := model.ParentOrgIdentity{
			ParentOrgID:   slug(g.canonical),
			CanonicalName: g.canonical,
			FirstYear:     g.firstYear,
			LastYear:      g.lastYear,
			ContractCount: len(g.contracts),
			CreatedAt:     time.Now().UTC(),
		}
		for name, years := range g.nameYears {
			sorted := make([]int, 0, len(years))
			for y := range years {
				sorted = append(sorted, y)
			}
			sort.Ints(sorted)
			id.NameVariations = append(id.NameVariations, name)
			id.NameHistory = append(id.NameHistory, model.NameUse{Name: name, Years: sorted})
		}
		sort.Slice(id.NameHistory, func(i, j int) bool {
			a, b := id.NameHistory[i], id.NameHistory[j]
			if a.Years[0] != b.Years[0] {
				return a.Years[0] < b.Years[0]
			}
			return a.Name < b.Name
		})
		sort.Strings(id.NameVariations)
		id.MAHistory = c.eventsFor(g.canonical)
		identities = append(identities, id)
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].CanonicalName < identities[j].CanonicalName
	})

	log.Info("parent organizations resolved",
		zap.Int("observations", len(observations)),
		zap.Int("identities", len(identities)))
	return identities
}

// eventsFor returns the corporate events that flow into a canonical
// identity, ordered by year.
func (c *Canonicalizer) eventsFor(canonical string) []model.OrgEvent {
	key := Normalize(canonical)
	var out []model.OrgEvent
	for _, ev := range c.History.Events {
		if Normalize(c.History.canonicalSpelling(ev.ToName)) != key {
			continue
		}
		out = append(out, model.OrgEvent{
			Year:         ev.Year,
			EventType:    ev.Type,
			AcquiredName: ev.FromName,
			Notes:        ev.Notes,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func slug(name string) string {
	return "org-" + strings.ReplaceAll(Normalize(name), " ", "-")
}
