// Package orgs resolves parent-organization names to stable canonical
// identities across years, applying the known acquisition and rebrand
// history so that an acquired insurer's contracts roll up to the
// acquirer from the effective year onward.
package orgs

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Event types recognized in the corporate-history table.
const (
	EventAcquisition = "acquisition"
	EventRebrand     = "rebrand"
)

// Event is one corporate action affecting how a published parent name
// maps to a canonical organization from Year onward.
type Event struct {
	Year     int    `yaml:"year"`
	Type     string `yaml:"type"`
	FromName string `yaml:"from"`
	ToName   string `yaml:"to"`
	Notes    string `yaml:"notes,omitempty"`
}

// eventsFile is the on-disk shape of a maintained corporate-history
// override file.
type eventsFile struct {
	Events     []Event             `yaml:"events"`
	Variations map[string][]string `yaml:"name_variations"`
}

// defaultEvents is the built-in corporate history. An override file
// extends it rather than replacing it.
var defaultEvents = []Event{
	{Year: 2018, Type: EventAcquisition, FromName: "Aetna Inc.", ToName: "CVS Health Corporation", Notes: "CVS Health completed its acquisition of Aetna in November 2018"},
	{Year: 2020, Type: EventAcquisition, FromName: "WellCare Health Plans, Inc.", ToName: "Centene Corporation", Notes: "Centene closed the WellCare acquisition in January 2020"},
	{Year: 2022, Type: EventAcquisition, FromName: "Magellan Health, Inc.", ToName: "Centene Corporation", Notes: "Centene closed the Magellan acquisition in January 2022"},
	{Year: 2022, Type: EventRebrand, FromName: "Anthem, Inc.", ToName: "Elevance Health, Inc.", Notes: "Anthem renamed itself Elevance Health in June 2022"},
	{Year: 2023, Type: EventRebrand, FromName: "CIGNA", ToName: "The Cigna Group", Notes: "Cigna Corporation became The Cigna Group in February 2023"},
}

// defaultVariations maps a canonical name to the spellings the raw
// publications have used for it over the years.
var defaultVariations = map[string][]string{
	"UnitedHealth Group, Inc.": {
		"UnitedHealth Group",
		"United Health Group",
		"UnitedHealthcare",
		"United Healthcare",
	},
	"Humana Inc.": {
		"Humana",
		"Humana, Inc.",
	},
	"CVS Health Corporation": {
		"CVS Health",
		"CVS Caremark",
	},
	"Aetna Inc.": {
		"Aetna",
		"Aetna, Inc.",
	},
	"Centene Corporation": {
		"Centene",
		"Centene Corp",
	},
	// Rebrands are year-independent spelling variations: the old name
	// always reports under the new one. Acquisitions stay in the event
	// list because they only apply from the event year onward.
	"Elevance Health, Inc.": {
		"Elevance Health",
		"Elevance",
		"Anthem",
		"Anthem, Inc.",
		"Anthem Inc.",
		"WellPoint, Inc.",
	},
	"The Cigna Group": {
		"Cigna",
		"CIGNA",
		"Cigna Corporation",
	},
	"Kaiser Foundation Health Plan, Inc.": {
		"Kaiser Foundation Health Plan",
		"Kaiser Permanente",
	},
}

// History is the resolved corporate-history table a Canonicalizer
// consults.
type History struct {
	Events []Event
	// variationToCanonical maps a normalized variant spelling to its
	// canonical name.
	variationToCanonical map[string]string
}

// DefaultHistory returns the built-in corporate history.
func DefaultHistory() *History {
	return newHistory(defaultEvents, defaultVariations)
}

// LoadHistory reads a YAML override file and merges it over the
// built-in history. Added variations win over built-in ones.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "orgs: read history file %s", path)
	}
	var f eventsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "orgs: parse history file %s", path)
	}

	events := append(append([]Event{}, defaultEvents...), f.Events...)
	variations := make(map[string][]string, len(defaultVariations)+len(f.Variations))
	for k, v := range defaultVariations {
		variations[k] = v
	}
	for k, v := range f.Variations {
		variations[k] = append(variations[k], v...)
	}
	return newHistory(events, variations), nil
}

func newHistory(events []Event, variations map[string][]string) *History {
	h := &History{
		Events:               events,
		variationToCanonical: make(map[string]string),
	}
	for canonical, vars := range variations {
		for _, v := range vars {
			h.variationToCanonical[Normalize(v)] = canonical
		}
		h.variationToCanonical[Normalize(canonical)] = canonical
	}
	return h
}

// canonicalSpelling maps a published name to its canonical spelling,
// before any corporate events are applied.
func (h *History) canonicalSpelling(name string) string {
	if c, ok := h.variationToCanonical[Normalize(name)]; ok {
		return c
	}
	return strings.TrimSpace(name)
}

// Normalize reduces a name to a comparison key: lowercase, punctuation
// stripped, corporate suffixes dropped, whitespace collapsed.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, p := range []string{",", ".", "'", "\""} {
		s = strings.ReplaceAll(s, p, "")
	}
	fields := strings.Fields(s)
	for len(fields) > 1 {
		switch fields[len(fields)-1] {
		case "inc", "llc", "corp", "corporation", "company", "co", "ltd", "lp", "plc":
			fields = fields[:len(fields)-1]
			continue
		}
		break
	}
	return strings.Join(fields, " ")
}
