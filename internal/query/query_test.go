package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewEngine(s.DB(), s), s
}

func seedFacts(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	facts := []model.EnrollmentFact{
		{ContractID: "H1234", PlanID: "001", Year: 2024, Month: 3, ProductType: "MAPD", GroupType: "Individual", SNPType: "Non-SNP", Enrollment: 1000},
		{ContractID: "H5678", PlanID: "850", Year: 2024, Month: 3, ProductType: "MAPD", GroupType: "Group", SNPType: "Non-SNP", Enrollment: 500},
	}
	_, err := s.ReplaceFactPartition(context.Background(), 2024, 3, facts)
	require.NoError(t, err)
}

func TestQueryWithAudit(t *testing.T) {
	e, s := newTestEngine(t)
	seedFacts(t, s)
	ctx := context.Background()

	res, err := e.QueryWithAudit(ctx,
		"SELECT contract_id, enrollment FROM enrollment_fact ORDER BY contract_id",
		"analyst", "monthly review")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"contract_id", "enrollment"}, res.Columns)
	assert.Equal(t, "H1234", res.Rows[0][0])
	assert.Equal(t, "1000", res.Rows[0][1])

	audit, err := s.GetQueryAudit(ctx, res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "analyst", audit.UserID)
	assert.Equal(t, "monthly review", audit.Context)
	assert.Equal(t, []string{"enrollment_fact"}, audit.TablesAccessed)
	assert.Equal(t, "success", audit.Status)
	assert.Equal(t, 2, audit.RowCount)
	assert.NotEmpty(t, audit.SQLHash)
}

func TestQueryWithAuditRecordsFailures(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	_, err := e.QueryWithAudit(ctx, "SELECT nope FROM enrollment_fact", "analyst", "")
	require.Error(t, err)

	// The failed query still left an audit entry.
	runs, err := s.DB().Query(`SELECT payload FROM query_audits`)
	require.NoError(t, err)
	defer runs.Close()
	var count int
	for runs.Next() {
		count++
	}
	require.NoError(t, runs.Err())
	assert.Equal(t, 1, count)
}

func TestQueryWithAuditRejectsWrites(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.QueryWithAudit(context.Background(), "DELETE FROM enrollment_fact", "analyst", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read statements")
}

func TestExtractTables(t *testing.T) {
	tables := extractTables(`SELECT f.*, p.canonical_name
		FROM enrollment_fact f JOIN parent_orgs p ON f.parent_org = p.canonical_name`)
	assert.Equal(t, []string{"enrollment_fact", "parent_orgs"}, tables)

	// Substring of a longer identifier does not count.
	assert.Empty(t, extractTables("SELECT * FROM enrollment_fact_archive"))
	assert.Empty(t, extractTables("SELECT 1"))
}

func TestTraceQueryLineage(t *testing.T) {
	e, s := newTestEngine(t)
	seedFacts(t, s)
	ctx := context.Background()

	// Seed a finished run with a transformation log reaching the fact table.
	run := model.PipelineRun{RunID: "run-1", PipelineName: "monthly_enrollment", Status: model.RunStatusSuccess}
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.ReplaceSourceFiles(ctx, "run-1", []model.SourceFile{
		{FileID: "r1-F0001", URI: "raw/enrollment.zip", FileType: "enrollment_plan", Year: 2024},
	}))
	require.NoError(t, s.ReplaceTransformations(ctx, "run-1", []model.Transformation{
		{TransformID: "r1-T0001", Seq: 1, Kind: model.TransformLoad, InputIDs: []string{"r1-F0001"}, OutputTable: "raw_enrollment"},
		{TransformID: "r1-T0002", Seq: 2, Kind: model.TransformDerive, InputIDs: []string{"r1-T0001"}, OutputTable: "enrollment_fact"},
	}))

	res, err := e.QueryWithAudit(ctx, "SELECT * FROM enrollment_fact", "analyst", "")
	require.NoError(t, err)

	lineage, found, err := e.TraceQueryLineage(ctx, res.AuditID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run-1", lineage.RunID)
	assert.Equal(t, []string{"enrollment_fact"}, lineage.TablesAccessed)
	require.Len(t, lineage.TablesLineage["enrollment_fact"], 2)
	assert.Equal(t, "r1-T0001", lineage.TablesLineage["enrollment_fact"][0].TransformID)
	require.Len(t, lineage.FullSourceChain, 1)
	assert.Equal(t, "raw/enrollment.zip", lineage.FullSourceChain[0].URI)
}

func TestTraceQueryLineageUnknownAudit(t *testing.T) {
	e, _ := newTestEngine(t)
	lineage, found, err := e.TraceQueryLineage(context.Background(), "no-such-audit")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, lineage)
}
