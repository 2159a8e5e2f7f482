package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/enroll-cli/internal/config"
	"github.com/plansight/enroll-cli/internal/fetcher"
	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/orgs"
	"github.com/plansight/enroll-cli/internal/reconcile"
	"github.com/plansight/enroll-cli/internal/sources"
	"github.com/plansight/enroll-cli/internal/store"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	if b, ok := m[uri]; ok {
		return b, nil
	}
	return nil, fetcher.ErrNotFound
}

func zipWith(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fixtureArchive publishes one period (2024-01) plus the crosswalk
// into 2024. The second requested period (2024-02) has no files, so a
// run over both must record a gap.
func fixtureArchive(t *testing.T) mapFetcher {
	t.Helper()
	enrollment := []byte("Contract Number,Plan ID,Organization Marketing Name,Plan Name,Enrollment\n" +
		"H1001,001,Acme Health,Acme Basic,1000\n" +
		"H1001,002,Acme Health,Acme Dual,*\n" +
		"H2002,801,Beta Health,Beta Group,500\n")
	cpsc := []byte("Contract ID,Plan ID,Organization Type,Plan Type,Offers Part D,SNP Plan,EGHP,Organization Marketing Name,Parent Organization,Enrollment\n" +
		"H1001,001,Local CCP,HMO,Yes,No,No,Acme Health,Acme Holdings Inc.,995\n" +
		"H1001,002,Local CCP,HMO,Yes,Yes,No,Acme Health,Acme Holdings Inc.,*\n" +
		"H2002,801,Local CCP,PPO,No,No,Yes,Beta Health,Aetna Inc.,490\n")
	snp := []byte("Contract Number,Plan ID,Special Needs Plan Type,Enrollment\n" +
		"H1001,002,Dual-Eligible,*\n")
	xwalk := []byte("PREVIOUS_CONTRACT_NUMBER,PREVIOUS_PLAN_ID,CURRENT_CONTRACT_NUMBER,CURRENT_PLAN_ID,CURRENT_SNP_TYPE\n" +
		"H1999,001,H1001,001,\n")
	serviceArea := []byte("Contract ID,State,County,SSA Code,FIPS Code\n" +
		"H1001,OH,Franklin,36210,39049\n" +
		"H1001,OH,Delaware,36190,39041\n")

	return mapFetcher{
		sources.EnrollmentKeys(2024, 1)[0]:  zipWith(t, "Monthly_Report_By_Plan_2024_01.csv", enrollment),
		sources.CPSCKeys(2024, 1)[0]:        zipWith(t, "CPSC_Enrollment_Info_2024_01.csv", cpsc),
		sources.SNPKeys(2024, 1)[0]:         zipWith(t, "SNP_Comprehensive_Report_2024_01.csv", snp),
		sources.CrosswalkKeys(2024)[0]:      zipWith(t, "crosswalk_2024.csv", xwalk),
		sources.ServiceAreaKeys(2024, 1)[0]: zipWith(t, "MA_Cnty_SA_2024_01.csv", serviceArea),
	}
}

func newTestPipeline(t *testing.T, f fetcher.Fetcher) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := config.PipelineConfig{
		Name:         "test_build",
		EarliestYear: 2022,
		Concurrency:  2,
		ArtifactDir:  filepath.Join(t.TempDir(), "artifacts"),
	}
	return New(st, f, orgs.NewCanonicalizer(orgs.DefaultHistory()), reconcile.New(), cfg), st
}

func TestPeriodRange(t *testing.T) {
	got := PeriodRange(Period{2023, 11}, Period{2024, 2})
	want := []Period{{2023, 11}, {2023, 12}, {2024, 1}, {2024, 2}}
	assert.Equal(t, want, got)

	assert.Len(t, PeriodRange(Period{2024, 3}, Period{2024, 3}), 1)
	assert.Empty(t, PeriodRange(Period{2024, 4}, Period{2024, 3}))
}

func TestRunBuildsWarehouse(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t, fixtureArchive(t))

	report, err := p.Run(ctx, []Period{{2024, 1}, {2024, 2}})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, model.RunStatusSuccess, report.Status)
	assert.Equal(t, []string{"2024-01"}, report.Periods)
	assert.Equal(t, []string{"2024-02"}, report.SkippedPeriods)
	assert.Equal(t, 3, report.Entities)
	assert.Equal(t, int64(3), report.FactRows)

	// The crosswalked plan's chain reaches its 2023 identity.
	ent, err := st.GetEntity(ctx, "H1001-001")
	require.NoError(t, err)
	require.Len(t, ent.IdentityChain, 2)
	assert.Equal(t, model.LinkCurrent, ent.IdentityChain[0].Source)
	assert.Equal(t, model.LinkCrosswalk, ent.IdentityChain[1].Source)
	assert.Equal(t, "H1999", ent.IdentityChain[1].ContractID)

	facts, err := st.FactPartition(ctx, 2024, 1)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	byPlan := make(map[string]model.EnrollmentFact, len(facts))
	for _, f := range facts {
		byPlan[f.ContractID+"-"+f.PlanID] = f
	}

	basic := byPlan["H1001-001"]
	assert.Equal(t, "MAPD", basic.ProductType)
	assert.Equal(t, "Individual", basic.GroupType)
	assert.Equal(t, "eghp_no", basic.GroupTypeSource)
	assert.Equal(t, "Non-SNP", basic.SNPType)
	assert.Equal(t, "Acme Holdings Inc.", basic.ParentOrg)
	assert.Equal(t, int64(1000), basic.Enrollment)
	assert.Equal(t, "monthly_report", basic.EnrollmentSource)

	dual := byPlan["H1001-002"]
	assert.Equal(t, "D-SNP", dual.SNPType)
	assert.Equal(t, "snp_report", dual.SNPTypeSource)
	assert.Zero(t, dual.Enrollment)
	assert.Equal(t, "suppressed", dual.EnrollmentSource)

	// H2002 reports enrollment but has no approved counties.
	require.Len(t, report.CoverageWarnings, 1)
	assert.Contains(t, report.CoverageWarnings[0], "H2002")

	group := byPlan["H2002-801"]
	assert.Equal(t, "Group", group.GroupType)
	assert.Equal(t, "eghp_yes", group.GroupTypeSource)
	assert.Equal(t, 1.0, group.GroupTypeConfidence)
	assert.Equal(t, "MA-only", group.ProductType)
	// Aetna rolls up to its acquirer from 2018 onward.
	assert.Equal(t, "CVS Health Corporation", group.ParentOrg)
}

func TestRunAuditTrail(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t, fixtureArchive(t))

	report, err := p.Run(ctx, []Period{{2024, 1}})
	require.NoError(t, err)

	run, err := st.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, "test_build", run.PipelineName)
	require.NotNil(t, run.FinishedAt)

	files, err := st.GetSourceFiles(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, files, 5)
	types := make(map[string]bool)
	for _, f := range files {
		types[f.FileType] = true
		assert.NotEmpty(t, f.ContentHash, f.URI)
		assert.Positive(t, f.RowCount, f.URI)
		assert.NotEmpty(t, f.ColumnNames, f.URI)
	}
	assert.True(t, types["enrollment_plan"])
	assert.True(t, types["contract_info"])
	assert.True(t, types["snp_report"])
	assert.True(t, types["crosswalk"])
	assert.True(t, types["service_area"])

	transforms, err := st.GetTransformations(ctx, report.RunID)
	require.NoError(t, err)
	kinds := make(map[model.TransformKind]int)
	for _, tr := range transforms {
		kinds[tr.Kind]++
	}
	assert.Equal(t, 5, kinds[model.TransformLoad])
	assert.Equal(t, 2, kinds[model.TransformJoin])
	assert.Equal(t, 4, kinds[model.TransformDerive])
	assert.Equal(t, 1, kinds[model.TransformAggregate])
	assert.Equal(t, 1, kinds[model.TransformFilter])

	summary, err := st.GetRunSummary(ctx, report.RunID)
	require.NoError(t, err)
	assert.Contains(t, string(summary), report.RunID)
}

func TestRunFlagsUnexplainedDiscrepancy(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, fixtureArchive(t))

	// Primary 1500 vs secondary 1485 leaves 15; one suppressed record
	// explains 5.5, and 9.5/1500 is above the default tolerance.
	report, err := p.Run(ctx, []Period{{2024, 1}})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01"}, report.FlaggedPeriods)
	assert.Equal(t, []string{"2024-01"}, report.Quality.FlaggedPeriods)
	assert.Equal(t, 1, report.Quality.PeriodsReconciled)

	require.NotEmpty(t, report.ArtifactPath)
	data, err := os.ReadFile(report.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1500")
}

func TestRunCountsSuppressionFromSecondarySource(t *testing.T) {
	ctx := context.Background()
	f := fixtureArchive(t)
	// The monthly report has no suppressed rows; the CPSC side has two.
	// 1500 vs 1489 leaves 11, fully explained by 2 x 5.5, so the period
	// must not flag. Counting primary-side suppression would flag it.
	f[sources.EnrollmentKeys(2024, 1)[0]] = zipWith(t, "Monthly_Report_By_Plan_2024_01.csv",
		[]byte("Contract Number,Plan ID,Organization Marketing Name,Plan Name,Enrollment\n"+
			"H1001,001,Acme Health,Acme Basic,1000\n"+
			"H2002,801,Beta Health,Beta Group,500\n"))
	f[sources.CPSCKeys(2024, 1)[0]] = zipWith(t, "CPSC_Enrollment_Info_2024_01.csv",
		[]byte("Contract ID,Plan ID,Organization Type,Plan Type,Offers Part D,SNP Plan,EGHP,Organization Marketing Name,Parent Organization,Enrollment\n"+
			"H1001,001,Local CCP,HMO,Yes,No,No,Acme Health,Acme Holdings Inc.,1489\n"+
			"H1001,002,Local CCP,HMO,Yes,Yes,No,Acme Health,Acme Holdings Inc.,*\n"+
			"H2002,801,Local CCP,PPO,No,No,Yes,Beta Health,Aetna Inc.,*\n"))
	p, _ := newTestPipeline(t, f)

	report, err := p.Run(ctx, []Period{{2024, 1}})
	require.NoError(t, err)

	assert.Empty(t, report.FlaggedPeriods)
	assert.Equal(t, 1, report.Quality.PeriodsReconciled)

	require.NotEmpty(t, report.ArtifactPath)
	data, err := os.ReadFile(report.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1489")
}

func TestRunSkipsCrosswalkWithUnknownLayout(t *testing.T) {
	ctx := context.Background()
	f := fixtureArchive(t)
	f[sources.CrosswalkKeys(2024)[0]] = zipWith(t, "crosswalk_2024.csv",
		[]byte("colA,colB,colC\n1,2,3\n"))
	p, st := newTestPipeline(t, f)

	report, err := p.Run(ctx, []Period{{2024, 1}})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, report.Status)

	require.Len(t, report.SchemaWarnings, 1)
	assert.Contains(t, report.SchemaWarnings[0], "crosswalk 2024")

	// The year is a gap, so no chain reaches the 2023 identity.
	ent, err := st.GetEntity(ctx, "H1001-001")
	require.NoError(t, err)
	for _, link := range ent.IdentityChain {
		assert.NotEqual(t, model.LinkCrosswalk, link.Source)
		assert.NotEqual(t, "H1999", link.ContractID)
	}
}

func TestRunSkipsPeriodWithUnknownEnrollmentLayout(t *testing.T) {
	ctx := context.Background()
	f := fixtureArchive(t)
	f[sources.EnrollmentKeys(2024, 2)[0]] = zipWith(t, "Monthly_Report_By_Plan_2024_02.csv",
		[]byte("weird1,weird2\nx,y\n"))
	p, st := newTestPipeline(t, f)

	report, err := p.Run(ctx, []Period{{2024, 1}, {2024, 2}})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, report.Status)

	// The malformed period is a recorded gap; its sibling still builds.
	assert.Equal(t, []string{"2024-01"}, report.Periods)
	assert.Equal(t, []string{"2024-02"}, report.SkippedPeriods)
	require.Len(t, report.SchemaWarnings, 1)
	assert.Contains(t, report.SchemaWarnings[0], "2024-02")

	facts, err := st.FactPartition(ctx, 2024, 1)
	require.NoError(t, err)
	assert.Len(t, facts, 3)
}

func TestRunDerivesWithoutMalformedContractInfo(t *testing.T) {
	ctx := context.Background()
	f := fixtureArchive(t)
	f[sources.CPSCKeys(2024, 1)[0]] = zipWith(t, "CPSC_Enrollment_Info_2024_01.csv",
		[]byte("weird1,weird2\nx,y\n"))
	p, st := newTestPipeline(t, f)

	report, err := p.Run(ctx, []Period{{2024, 1}})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, report.Status)

	facts, err := st.FactPartition(ctx, 2024, 1)
	require.NoError(t, err)
	require.Len(t, facts, 3)
	for _, fact := range facts {
		assert.Empty(t, fact.ParentOrg, fact.ContractID)
	}
}

func TestRunSkipsAllPeriodsFails(t *testing.T) {
	p, _ := newTestPipeline(t, mapFetcher{})
	_, err := p.Run(context.Background(), []Period{{2024, 1}})
	assert.Error(t, err)
}
