package reconcile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/enroll-cli/internal/model"
)

func TestReconcileExplainedBySuppression(t *testing.T) {
	r := New()
	rec := r.Reconcile(PeriodInput{
		Year: 2024, Month: 3,
		PrimaryTotal:          1_000_000,
		SecondaryTotal:        970_000,
		SuppressedRecordCount: 5_000,
	})

	assert.Equal(t, int64(30_000), rec.Discrepancy)
	assert.InDelta(t, 27_500.0, rec.EstimatedSuppressedEnrollees, 0.001)
	assert.InDelta(t, 2_500.0, rec.UnexplainedDiscrepancy, 0.001)
	// 2,500 / 1,000,000 = 0.25%, under the 0.3% tolerance.
	assert.False(t, rec.Flagged)
}

func TestReconcileFlagsLargeUnexplainedGap(t *testing.T) {
	r := New()
	rec := r.Reconcile(PeriodInput{
		Year: 2024, Month: 3,
		PrimaryTotal:          1_000_000,
		SecondaryTotal:        990_000,
		SuppressedRecordCount: 0,
	})
	assert.Equal(t, int64(10_000), rec.Discrepancy)
	assert.True(t, rec.Flagged)

	// Negative discrepancies flag on magnitude too.
	rec = r.Reconcile(PeriodInput{
		Year: 2024, Month: 4,
		PrimaryTotal:   1_000_000,
		SecondaryTotal: 1_010_000,
	})
	assert.True(t, rec.Flagged)
}

func TestReconcileZeroPrimary(t *testing.T) {
	r := New()
	rec := r.Reconcile(PeriodInput{Year: 2024, Month: 1})
	assert.False(t, rec.Flagged)

	rec = r.Reconcile(PeriodInput{Year: 2024, Month: 1, SecondaryTotal: 10})
	assert.True(t, rec.Flagged)
}

func fact(product, group, snp string, n int64) model.EnrollmentFact {
	return model.EnrollmentFact{
		ProductType: product,
		GroupType:   group,
		SNPType:     snp,
		Enrollment:  n,
	}
}

func TestCheckDimensions(t *testing.T) {
	facts := []model.EnrollmentFact{
		fact("MAPD", "Individual", "Non-SNP", 700),
		fact("MAPD", "Group", "Non-SNP", 200),
		fact("PDP", "Individual", "D-SNP", 100),
	}
	checks := CheckDimensions(2024, 3, facts)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.True(t, c.Valid, c.Dimension)
		assert.Equal(t, int64(1000), c.Total)
	}

	var product model.DimensionCheck
	for _, c := range checks {
		if c.Dimension == "product_type" {
			product = c
		}
	}
	assert.Equal(t, int64(900), product.Breakdown["MAPD"])
	assert.Equal(t, int64(100), product.Breakdown["PDP"])
}

func TestValidateBreakdownShortfall(t *testing.T) {
	check := ValidateBreakdown(2024, 3, "group_type", 1000, map[string]int64{
		"Individual": 600,
		"Unknown":    300,
	})
	assert.False(t, check.Valid)
	assert.Equal(t, int64(100), check.Discrepancy)
	assert.Equal(t, "Individual", check.ShortfallBucket)
	assert.InDelta(t, 0.3, check.UnknownPct, 0.0001)
}

func TestBuildQualityReport(t *testing.T) {
	records := []model.ReconciliationRecord{
		{Year: 2024, Month: 1, PrimaryTotal: 100, DiscrepancyPct: 0.001},
		{Year: 2024, Month: 2, PrimaryTotal: 100, SecondaryTotal: 90, DiscrepancyPct: -0.01, UnexplainedDiscrepancy: 1000, Flagged: true},
	}
	checks := []model.DimensionCheck{
		{Year: 2024, Month: 1, Dimension: "group_type", Valid: true},
		{Year: 2024, Month: 2, Dimension: "snp_type", Valid: false, Discrepancy: 50, ShortfallBucket: "Unknown"},
	}

	report := BuildQualityReport(records, checks)
	assert.Equal(t, 2, report.PeriodsReconciled)
	assert.Equal(t, []string{"2024-02"}, report.FlaggedPeriods)
	assert.Equal(t, 1, report.FailedChecks)
	assert.InDelta(t, 0.0055, report.AvgDiscrepancyPct, 0.0001)
	assert.InDelta(t, 0.01, report.MaxDiscrepancyPct, 0.0001)
	assert.Len(t, report.Issues, 2)
	assert.Len(t, report.Recommendations, 2)
}

func TestWriteRecordsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifacts", "reconciliation.csv")
	records := []model.ReconciliationRecord{
		{Year: 2024, Month: 3, PrimaryTotal: 1000, SecondaryTotal: 990, Discrepancy: 10},
	}
	require.NoError(t, WriteRecordsCSV(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "primary_total")
	assert.Contains(t, lines[1], "1000")
}
