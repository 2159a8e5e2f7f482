package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/enroll-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string) model.PipelineRun {
	return model.PipelineRun{
		RunID:        id,
		PipelineName: "monthly_enrollment",
		StartedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:       model.RunStatusRunning,
	}
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "monthly_enrollment", got.PipelineName)
	assert.Equal(t, model.RunStatusRunning, got.Status)

	// Saving again with terminal state updates in place.
	now := time.Now().UTC()
	run.Status = model.RunStatusSuccess
	run.FinishedAt = &now
	run.OutputRowCount = 42
	require.NoError(t, s.SaveRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, got.Status)
	assert.Equal(t, 42, got.OutputRowCount)
	require.NotNil(t, got.FinishedAt)
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testRun("run-a")
	a.Status = model.RunStatusSuccess
	b := testRun("run-b")
	b.StartedAt = a.StartedAt.Add(time.Hour)
	require.NoError(t, s.SaveRun(ctx, a))
	require.NoError(t, s.SaveRun(ctx, b))

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)

	runs, err = s.ListRuns(ctx, RunFilter{Status: model.RunStatusSuccess})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].RunID)

	runs, err = s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteAuditArtifacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, testRun("run-1")))

	month := 3
	files := []model.SourceFile{
		{FileID: "abc-F0001", URI: "raw/enrollment.zip", FileType: "enrollment_plan", Year: 2024, Month: &month, ContentHash: "deadbeef"},
	}
	require.NoError(t, s.ReplaceSourceFiles(ctx, "run-1", files))

	transforms := []model.Transformation{
		{TransformID: "abc-T0001", PipelineRunID: "run-1", Seq: 1, Kind: model.TransformLoad, OutputTable: "raw_enrollment", InputIDs: []string{"abc-F0001"}},
		{TransformID: "abc-T0002", PipelineRunID: "run-1", Seq: 2, Kind: model.TransformDerive, OutputTable: "enrollment_fact", InputIDs: []string{"abc-T0001"}, DerivedField: "group_type"},
	}
	require.NoError(t, s.ReplaceTransformations(ctx, "run-1", transforms))

	gotFiles, err := s.GetSourceFiles(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotFiles, 1)
	assert.Equal(t, "deadbeef", gotFiles[0].ContentHash)
	require.NotNil(t, gotFiles[0].Month)
	assert.Equal(t, 3, *gotFiles[0].Month)

	gotTs, err := s.GetTransformations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotTs, 2)
	assert.Equal(t, "group_type", gotTs[1].DerivedField)

	// Replacement is idempotent.
	require.NoError(t, s.ReplaceTransformations(ctx, "run-1", transforms[:1]))
	gotTs, err = s.GetTransformations(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, gotTs, 1)

	require.NoError(t, s.SaveRunSummary(ctx, "run-1", []byte(`{"ok":true}`)))
	summary, err := s.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(summary))
}

func TestSQLiteEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entities := []model.Entity{
		{
			EntityID:          "H1234-001",
			CurrentContractID: "H1234",
			CurrentPlanID:     "001",
			FirstYear:         2020,
			LastYear:          2026,
			ChainLength:       7,
			IdentityChain: []model.ChainLink{
				{Year: 2026, ContractID: "H1234", PlanID: "001", Source: model.LinkCurrent, Confidence: 1.0},
			},
		},
	}
	require.NoError(t, s.ReplaceEntities(ctx, entities))

	got, err := s.GetEntity(ctx, "H1234-001")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ChainLength)
	require.Len(t, got.IdentityChain, 1)
	assert.Equal(t, model.LinkCurrent, got.IdentityChain[0].Source)

	_, err = s.GetEntity(ctx, "H9999-001")
	assert.True(t, eris.Is(err, ErrNotFound))

	// Full replacement drops entities absent from the new build.
	require.NoError(t, s.ReplaceEntities(ctx, nil))
	_, err = s.GetEntity(ctx, "H1234-001")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteParentOrgs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orgs := []model.ParentOrgIdentity{
		{ParentOrgID: "org-humana", CanonicalName: "Humana Inc.", FirstYear: 2006, LastYear: 2026, ContractCount: 30},
		{ParentOrgID: "org-centene", CanonicalName: "Centene Corporation", FirstYear: 2010, LastYear: 2026, ContractCount: 12},
	}
	require.NoError(t, s.ReplaceParentOrgs(ctx, orgs))

	got, err := s.ListParentOrgs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Centene Corporation", got[0].CanonicalName)
	assert.Equal(t, 30, got[1].ContractCount)
}

func TestSQLiteFactPartitionReplacement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	facts := []model.EnrollmentFact{
		{ContractID: "H1234", PlanID: "001", Year: 2024, Month: 3, ProductType: "MAPD", GroupType: "Individual", GroupTypeSource: "eghp_no", GroupTypeConfidence: 0.95, SNPType: "Non-SNP", SNPTypeSource: "cpsc_flag", Enrollment: 1000, EnrollmentSource: "monthly_report"},
		{ContractID: "H5678", PlanID: "850", Year: 2024, Month: 3, ProductType: "MAPD", GroupType: "Group", GroupTypeSource: "plan_id_gte_800", GroupTypeConfidence: 0.90, SNPType: "Non-SNP", Enrollment: 500},
	}
	n, err := s.ReplaceFactPartition(ctx, 2024, 3, facts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.FactPartition(ctx, 2024, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "H1234", got[0].ContractID)
	assert.Equal(t, 0.95, got[0].GroupTypeConfidence)

	// Rebuilding the same period replaces, not appends.
	n, err = s.ReplaceFactPartition(ctx, 2024, 3, facts[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = s.FactPartition(ctx, 2024, 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Other periods are untouched.
	got, err = s.FactPartition(ctx, 2024, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteReconciliation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []model.ReconciliationRecord{
		{Year: 2024, Month: 3, PrimaryTotal: 1_000_000, SecondaryTotal: 970_000, Discrepancy: 30_000, SuppressedRecordCount: 5000, EstimatedSuppressedEnrollees: 27_500, UnexplainedDiscrepancy: 2_500},
	}
	checks := []model.DimensionCheck{
		{Year: 2024, Month: 3, Dimension: "group_type", Total: 1_000_000, DimensionSum: 1_000_000, Valid: true},
	}
	require.NoError(t, s.ReplaceReconciliation(ctx, "run-1", records, checks))
	// Re-running for the same run id replaces cleanly.
	require.NoError(t, s.ReplaceReconciliation(ctx, "run-1", records, checks))
}

func TestSQLiteQueryAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	audit := model.QueryAudit{
		AuditID:        "qa-1",
		Timestamp:      time.Now().UTC(),
		UserID:         "analyst",
		SQL:            "SELECT * FROM enrollment_fact",
		TablesAccessed: []string{"enrollment_fact"},
		RowCount:       10,
		Status:         "success",
	}
	require.NoError(t, s.SaveQueryAudit(ctx, audit))

	got, err := s.GetQueryAudit(ctx, "qa-1")
	require.NoError(t, err)
	assert.Equal(t, "analyst", got.UserID)
	assert.Equal(t, []string{"enrollment_fact"}, got.TablesAccessed)

	_, err = s.GetQueryAudit(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}
