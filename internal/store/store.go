// Package store persists the warehouse: run records and their audit
// artifacts, the resolved entity and parent-org dimensions, the
// monthly enrollment fact partitions, and reconciliation results.
// SQLite backs local runs; Postgres backs shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Pipeline string          `json:"pipeline,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrollment warehouse.
type Store interface {
	// Runs and audit artifacts
	SaveRun(ctx context.Context, run model.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
	ReplaceSourceFiles(ctx context.Context, runID string, files []model.SourceFile) error
	ReplaceTransformations(ctx context.Context, runID string, transforms []model.Transformation) error
	GetSourceFiles(ctx context.Context, runID string) ([]model.SourceFile, error)
	GetTransformations(ctx context.Context, runID string) ([]model.Transformation, error)
	SaveRunSummary(ctx context.Context, runID string, summary []byte) error
	GetRunSummary(ctx context.Context, runID string) ([]byte, error)

	// Dimensions (full replacement per build)
	ReplaceEntities(ctx context.Context, entities []model.Entity) error
	ReplaceParentOrgs(ctx context.Context, orgs []model.ParentOrgIdentity) error
	GetEntity(ctx context.Context, entityID string) (*model.Entity, error)
	ListParentOrgs(ctx context.Context) ([]model.ParentOrgIdentity, error)

	// Facts (full partition replacement per period)
	ReplaceFactPartition(ctx context.Context, year, month int, facts []model.EnrollmentFact) (int64, error)
	FactPartition(ctx context.Context, year, month int) ([]model.EnrollmentFact, error)

	// Reconciliation
	ReplaceReconciliation(ctx context.Context, runID string, records []model.ReconciliationRecord, checks []model.DimensionCheck) error

	// Query audit
	SaveQueryAudit(ctx context.Context, audit model.QueryAudit) error
	GetQueryAudit(ctx context.Context, auditID string) (*model.QueryAudit, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// factColumns is the column order shared by both drivers for the
// enrollment fact table.
var factColumns = []string{
	"contract_id", "plan_id", "year", "month",
	"parent_org", "plan_type", "plan_type_simple", "product_type",
	"group_type", "group_type_source", "group_type_confidence",
	"snp_type", "snp_type_source",
	"enrollment", "enrollment_source",
}

func factRow(f model.EnrollmentFact) []any {
	return []any{
		f.ContractID, f.PlanID, f.Year, f.Month,
		f.ParentOrg, f.PlanType, f.PlanTypeSimple, f.ProductType,
		f.GroupType, f.GroupTypeSource, f.GroupTypeConfidence,
		f.SNPType, f.SNPTypeSource,
		f.Enrollment, f.EnrollmentSource,
	}
}
