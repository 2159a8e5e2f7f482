package pipeline

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/reconcile"
)

// RunReport summarizes one build for the operator. Persisted audit
// detail lives in the store; this is the console-facing digest.
type RunReport struct {
	RunID  string          `json:"run_id"`
	Status model.RunStatus `json:"status"`

	Periods        []string `json:"periods"`
	SkippedPeriods []string `json:"skipped_periods,omitempty"`

	SchemaWarnings    []string `json:"schema_warnings,omitempty"`
	CoverageWarnings  []string `json:"coverage_warnings,omitempty"`
	AmbiguousMappings int      `json:"ambiguous_mappings,omitempty"`

	Entities   int   `json:"entities"`
	ParentOrgs int   `json:"parent_orgs"`
	FactRows   int64 `json:"fact_rows"`

	FlaggedPeriods []string            `json:"flagged_periods,omitempty"`
	Quality        model.QualityReport `json:"quality"`

	ArtifactPath string `json:"artifact_path,omitempty"`
}

// writeReconciliationCSV drops the period-by-period reconciliation
// into the artifact directory for spreadsheet review.
func writeReconciliationCSV(dir, runID string, records []model.ReconciliationRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create artifact dir %s", dir)
	}
	path := filepath.Join(dir, runID+"-reconciliation.csv")
	if err := reconcile.WriteRecordsCSV(path, records); err != nil {
		return "", err
	}
	return path, nil
}
