package orgs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "humana", Normalize("Humana Inc."))
	assert.Equal(t, "humana", Normalize("  Humana,   Inc. "))
	assert.Equal(t, "unitedhealth group", Normalize("UnitedHealth Group, Inc."))
	assert.Equal(t, "inc", Normalize("Inc."))
}

func TestCanonicalRebrandIsYearIndependent(t *testing.T) {
	c := NewCanonicalizer(nil)
	assert.Equal(t, "Elevance Health, Inc.", c.Canonical("Anthem Inc.", 2020))
	assert.Equal(t, "Elevance Health, Inc.", c.Canonical("Elevance Health, Inc.", 2023))
}

func TestCanonicalAcquisitionIsYearGated(t *testing.T) {
	c := NewCanonicalizer(nil)
	// Before the acquisition closed, Aetna reports as itself.
	assert.Equal(t, "Aetna Inc.", c.Canonical("Aetna", 2016))
	assert.Equal(t, "CVS Health Corporation", c.Canonical("Aetna Inc.", 2018))
	assert.Equal(t, "CVS Health Corporation", c.Canonical("Aetna", 2022))
	assert.Equal(t, "Centene Corporation", c.Canonical("WellCare Health Plans, Inc.", 2021))
	assert.Equal(t, "WellCare Health Plans, Inc.", c.Canonical("WellCare Health Plans, Inc.", 2019))
}

func TestCanonicalUnknownNamePassesThrough(t *testing.T) {
	c := NewCanonicalizer(nil)
	assert.Equal(t, "Mom and Pop Health Plan", c.Canonical("Mom and Pop Health Plan", 2024))
}

func TestBuildIdentitiesMergesRebrand(t *testing.T) {
	c := NewCanonicalizer(nil)
	obs := []Observation{
		{RawName: "Anthem Inc.", Year: 2020, ContractID: "H1111"},
		{RawName: "Anthem Inc.", Year: 2021, ContractID: "H1111"},
		{RawName: "Elevance Health, Inc.", Year: 2023, ContractID: "H1111"},
		{RawName: "Elevance Health, Inc.", Year: 2023, ContractID: "H2222"},
	}

	ids := c.BuildIdentities(obs)
	require.Len(t, ids, 1)
	id := ids[0]
	assert.Equal(t, "Elevance Health, Inc.", id.CanonicalName)
	assert.Equal(t, "org-elevance-health", id.ParentOrgID)
	assert.Equal(t, 2020, id.FirstYear)
	assert.Equal(t, 2023, id.LastYear)
	assert.Equal(t, 2, id.ContractCount)

	require.Len(t, id.NameHistory, 2)
	assert.Equal(t, "Anthem Inc.", id.NameHistory[0].Name)
	assert.Equal(t, []int{2020, 2021}, id.NameHistory[0].Years)
	assert.Equal(t, "Elevance Health, Inc.", id.NameHistory[1].Name)

	require.NotEmpty(t, id.MAHistory)
	assert.Equal(t, "rebrand", id.MAHistory[0].EventType)
	assert.Equal(t, 2022, id.MAHistory[0].Year)
}

func TestBuildIdentitiesAcquirerNeverObserved(t *testing.T) {
	c := NewCanonicalizer(nil)
	obs := []Observation{
		{RawName: "Aetna Inc.", Year: 2019, ContractID: "H3333"},
		{RawName: "Aetna Inc.", Year: 2020, ContractID: "H3333"},
	}

	ids := c.BuildIdentities(obs)
	require.Len(t, ids, 1)
	assert.Equal(t, "CVS Health Corporation", ids[0].CanonicalName)
	assert.Equal(t, []string{"Aetna Inc."}, ids[0].NameVariations)
}

func TestBuildIdentitiesStableAcrossRuns(t *testing.T) {
	c := NewCanonicalizer(nil)
	obs := []Observation{
		{RawName: "Humana", Year: 2024, ContractID: "H1"},
		{RawName: "Centene", Year: 2024, ContractID: "H2"},
		{RawName: "Humana Inc.", Year: 2023, ContractID: "H1"},
	}

	first := c.BuildIdentities(obs)
	second := c.BuildIdentities(obs)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ParentOrgID, second[i].ParentOrgID)
		assert.Equal(t, first[i].NameHistory, second[i].NameHistory)
	}
}

func TestLoadHistoryMergesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.yaml")
	content := []byte(`events:
  - year: 2025
    type: acquisition
    from: Tiny Regional Plan
    to: Humana Inc.
name_variations:
  Humana Inc.:
    - Humana Health Plans
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	h, err := LoadHistory(path)
	require.NoError(t, err)

	c := NewCanonicalizer(h)
	assert.Equal(t, "Humana Inc.", c.Canonical("Humana Health Plans", 2024))
	assert.Equal(t, "Humana Inc.", c.Canonical("Tiny Regional Plan", 2025))
	assert.Equal(t, "Tiny Regional Plan", c.Canonical("Tiny Regional Plan", 2024))
}

func TestLoadHistoryMissingFile(t *testing.T) {
	_, err := LoadHistory("/nonexistent/history.yaml")
	assert.Error(t, err)
}
