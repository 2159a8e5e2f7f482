package reconcile

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/model"
)

// BuildQualityReport summarizes reconciliation records and dimension
// checks into the findings the run report carries.
func BuildQualityReport(records []model.ReconciliationRecord, checks []model.DimensionCheck) model.QualityReport {
	report := model.QualityReport{
		GeneratedAt:       time.Now().UTC(),
		PeriodsReconciled: len(records),
		DimensionsChecked: len(checks),
	}

	var pctSum float64
	for _, r := range records {
		pct := math.Abs(r.DiscrepancyPct)
		pctSum += pct
		if pct > report.MaxDiscrepancyPct {
			report.MaxDiscrepancyPct = pct
		}
		if r.SecondaryTotal != 0 {
			report.PeriodsWithGeoData++
		}
		if r.Flagged {
			period := fmt.Sprintf("%d-%02d", r.Year, r.Month)
			report.FlaggedPeriods = append(report.FlaggedPeriods, period)
			report.Issues = append(report.Issues, model.QualityIssue{
				Severity: "high",
				Issue:    "unexplained enrollment discrepancy",
				Detail:   fmt.Sprintf("%s: %.0f enrollees unexplained after suppression estimate", period, r.UnexplainedDiscrepancy),
			})
		}
	}
	if len(records) > 0 {
		report.AvgDiscrepancyPct = pctSum / float64(len(records))
	}

	for _, c := range checks {
		if c.Valid {
			continue
		}
		report.FailedChecks++
		report.Issues = append(report.Issues, model.QualityIssue{
			Severity: "medium",
			Issue:    "dimension breakdown does not sum to total",
			Detail: fmt.Sprintf("%d-%02d %s short by %d, largest bucket %s",
				c.Year, c.Month, c.Dimension, c.Discrepancy, c.ShortfallBucket),
		})
	}

	if len(report.FlaggedPeriods) > 0 {
		report.Recommendations = append(report.Recommendations,
			"review suppression midpoint assumption for flagged periods")
	}
	if report.FailedChecks > 0 {
		report.Recommendations = append(report.Recommendations,
			"inspect records deriving to Unknown dimension values")
	}
	return report
}

// WriteRecordsCSV writes the reconciliation records as a CSV artifact.
func WriteRecordsCSV(path string, records []model.ReconciliationRecord) error {
	data, err := csvutil.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "reconcile: encode reconciliation csv")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "reconcile: create artifact dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "reconcile: write %s", path)
	}
	return nil
}
