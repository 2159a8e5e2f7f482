package model

import "time"

// ReconciliationRecord compares the primary enrollment total for one period
// against a second, independently-suppressed source. The discrepancy is
// explained by suppressed records up to an assumed per-record midpoint; only
// the unexplained remainder can flag a period.
type ReconciliationRecord struct {
	Year  int `json:"year" csv:"year"`
	Month int `json:"month" csv:"month"`

	PrimaryTotal   int64 `json:"primary_total" csv:"primary_total"`
	SecondaryTotal int64 `json:"secondary_total" csv:"secondary_total"`

	Discrepancy    int64   `json:"discrepancy" csv:"discrepancy"`
	DiscrepancyPct float64 `json:"discrepancy_pct" csv:"discrepancy_pct"`

	SuppressedRecordCount        int     `json:"suppressed_record_count" csv:"suppressed_record_count"`
	EstimatedSuppressedEnrollees float64 `json:"estimated_suppressed_enrollment" csv:"estimated_suppressed_enrollment"`
	UnexplainedDiscrepancy       float64 `json:"unexplained_discrepancy" csv:"unexplained_discrepancy"`

	Flagged bool `json:"flagged" csv:"flagged"`
}

// DimensionCheck asserts that one dimension's breakdown sums to the period
// grand total within floating tolerance.
type DimensionCheck struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Dimension string `json:"dimension"`

	Total        int64            `json:"total"`
	DimensionSum int64            `json:"dimension_sum"`
	Breakdown    map[string]int64 `json:"breakdown"`

	Discrepancy int64   `json:"discrepancy"`
	UnknownPct  float64 `json:"unknown_pct"`
	Valid       bool    `json:"valid"`
	// ShortfallBucket names the dimension value (commonly "Unknown")
	// accounting for the largest share of any shortfall.
	ShortfallBucket string `json:"shortfall_bucket,omitempty"`
}

// QualityIssue is one finding in the data-quality report.
type QualityIssue struct {
	Severity string `json:"severity"` // high, medium, low
	Issue    string `json:"issue"`
	Detail   string `json:"detail,omitempty"`
}

// QualityReport aggregates reconciliation and dimension-validation findings.
type QualityReport struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	AvgDiscrepancyPct  float64        `json:"avg_discrepancy_pct"`
	MaxDiscrepancyPct  float64        `json:"max_discrepancy_pct"`
	FlaggedPeriods     []string       `json:"flagged_periods,omitempty"`
	FailedChecks       int            `json:"failed_checks"`
	Issues             []QualityIssue `json:"issues,omitempty"`
	Recommendations    []string       `json:"recommendations,omitempty"`
	PeriodsReconciled  int            `json:"periods_reconciled"`
	DimensionsChecked  int            `json:"dimensions_checked"`
	PeriodsWithGeoData int            `json:"periods_with_secondary"`
}
