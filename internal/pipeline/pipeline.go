// Package pipeline orchestrates a warehouse build: load the monthly
// publications, resolve entity chains through the annual crosswalks,
// canonicalize parent organizations, derive the fact dimensions, and
// reconcile the period totals. Every step is recorded in the audit log
// for the run; a missing publication is a recorded gap, not a failure.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plansight/enroll-cli/internal/audit"
	"github.com/plansight/enroll-cli/internal/config"
	"github.com/plansight/enroll-cli/internal/crosswalk"
	"github.com/plansight/enroll-cli/internal/entity"
	"github.com/plansight/enroll-cli/internal/fetcher"
	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/orgs"
	"github.com/plansight/enroll-cli/internal/reconcile"
	"github.com/plansight/enroll-cli/internal/sources"
	"github.com/plansight/enroll-cli/internal/store"
)

// Period is one publication month.
type Period struct {
	Year  int
	Month int
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}

// PeriodRange expands [from, to] inclusive into monthly periods.
func PeriodRange(from, to Period) []Period {
	var out []Period
	for y, m := from.Year, from.Month; y < to.Year || (y == to.Year && m <= to.Month); {
		out = append(out, Period{Year: y, Month: m})
		m++
		if m > 12 {
			y, m = y+1, 1
		}
	}
	return out
}

// Pipeline wires the source loaders, resolvers, and store into one
// build. Fetcher should be cache-backed so audit re-fetches are cheap.
type Pipeline struct {
	Store   store.Store
	Fetcher fetcher.Fetcher
	Orgs    *orgs.Canonicalizer
	Recon   *reconcile.Reconciler
	Cfg     config.PipelineConfig

	log *zap.Logger
}

// New assembles a pipeline from its collaborators.
func New(st store.Store, f fetcher.Fetcher, canon *orgs.Canonicalizer, rec *reconcile.Reconciler, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		Store:   st,
		Fetcher: f,
		Orgs:    canon,
		Recon:   rec,
		Cfg:     cfg,
		log:     zap.L().With(zap.String("component", "pipeline")),
	}
}

// periodData is the parsed source material for one period. The CPSC
// and SNP slices are nil when that publication does not exist for the
// period; enrollment is mandatory, so a periodData always carries it.
type periodData struct {
	period Period

	enrID  string
	cpscID string
	snpID  string
	saID   string

	enrLoadID  string
	cpscLoadID string
	snpLoadID  string
	saLoadID   string

	enr  []sources.PlanEnrollment
	cpsc []sources.ContractInfo
	snp  []sources.SNPRecord
	sa   []sources.ServiceArea
}

// outputTables is everything a full build writes, reported on the run
// record at finish.
var outputTables = []string{
	"entities", "parent_orgs", "enrollment_fact",
	"reconciliation", "dimension_checks",
}

// Run executes a full build over the requested periods and returns the
// run report. Source gaps and reconciliation flags are reported, not
// fatal; a store or audit persistence failure is.
func (p *Pipeline) Run(ctx context.Context, periods []Period) (*RunReport, error) {
	if len(periods) == 0 {
		return nil, eris.New("pipeline: no periods requested")
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})

	logger := audit.NewLogger(p.Cfg.Name, p.Store)
	log := p.log.With(zap.String("run_id", logger.RunID()))
	report := &RunReport{RunID: logger.RunID(), Status: model.RunStatusRunning}

	runErr := p.run(ctx, logger, log, periods, report)
	if runErr != nil {
		report.Status = model.RunStatusFailed
		if err := logger.FinishRun(ctx, false, outputTables, int(report.FactRows), runErr); err != nil {
			log.Error("audit persistence failed after run error", zap.Error(err))
		}
		return report, runErr
	}

	report.Status = model.RunStatusSuccess
	if err := logger.FinishRun(ctx, true, outputTables, int(report.FactRows), nil); err != nil {
		report.Status = model.RunStatusFailed
		return report, eris.Wrap(err, "pipeline: finish run")
	}
	log.Info("build complete",
		zap.Int("periods", len(report.Periods)),
		zap.Int("skipped", len(report.SkippedPeriods)),
		zap.Int("entities", report.Entities),
		zap.Int64("fact_rows", report.FactRows))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, logger *audit.Logger, log *zap.Logger, periods []Period, report *RunReport) error {
	concurrency := p.Cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	// Load every period's publications up front; entity resolution
	// needs the full set of observed identities before any fact build.
	data := make([]*periodData, len(periods))
	loadWarnings := make([]string, len(periods))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, per := range periods {
		i, per := i, per
		g.Go(func() error {
			d, err := p.loadPeriod(gctx, logger, per)
			switch {
			case eris.Is(err, sources.ErrSourceUnavailable):
				log.Warn("period never published, skipping", zap.String("period", per.String()))
				return nil
			case eris.Is(err, sources.ErrSchemaMismatch):
				log.Error("enrollment report layout unrecognized, skipping period",
					zap.String("period", per.String()), zap.Error(err))
				loadWarnings[i] = fmt.Sprintf("%s: enrollment report layout unrecognized, period skipped", per)
				return nil
			case err != nil:
				return err
			}
			data[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: load sources")
	}

	loaded := data[:0]
	for i, d := range data {
		if w := loadWarnings[i]; w != "" {
			report.SchemaWarnings = append(report.SchemaWarnings, w)
		}
		if d == nil {
			report.SkippedPeriods = append(report.SkippedPeriods, periods[i].String())
			continue
		}
		report.Periods = append(report.Periods, d.period.String())
		loaded = append(loaded, d)
	}
	if len(loaded) == 0 {
		return eris.New("pipeline: no requested period has a published enrollment report")
	}

	idx, xwalkIDs, err := p.buildIndex(ctx, logger, log, loaded, report)
	if err != nil {
		return err
	}

	if err := p.buildEntities(ctx, logger, idx, xwalkIDs, loaded, report); err != nil {
		return err
	}
	if err := p.buildParentOrgs(ctx, logger, loaded, report); err != nil {
		return err
	}

	// Fact partitions are independent per period.
	results := make([]*periodResult, len(loaded))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, d := range loaded {
		i, d := i, d
		g.Go(func() error {
			res, err := p.buildPeriod(gctx, logger, d)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: build facts")
	}

	return p.reconcileRun(ctx, logger, log, results, report)
}

// buildIndex observes every identity seen in the enrollment reports
// and loads the crosswalk for each transition year in range. A missing
// crosswalk year is a gap the walker bridges with assumed links.
func (p *Pipeline) buildIndex(ctx context.Context, logger *audit.Logger, log *zap.Logger, loaded []*periodData, report *RunReport) (*entity.Index, []string, error) {
	idx := entity.NewIndex()
	maxYear := 0
	for _, d := range loaded {
		if d.period.Year > maxYear {
			maxYear = d.period.Year
		}
		for _, row := range d.enr {
			idx.Observe(d.period.Year, row.ContractID, row.PlanID)
		}
	}

	earliest := p.Cfg.EarliestYear
	if earliest <= 0 {
		earliest = entity.EarliestProgramYear
	}

	var fileIDs []string
	for year := maxYear; year > earliest; year-- {
		t, err := crosswalk.Load(ctx, p.Fetcher, year)
		switch {
		case eris.Is(err, sources.ErrSourceUnavailable):
			continue
		case eris.Is(err, sources.ErrSchemaMismatch):
			log.Error("crosswalk layout unrecognized, treating year as a gap",
				zap.Int("year", year), zap.Error(err))
			report.SchemaWarnings = append(report.SchemaWarnings,
				fmt.Sprintf("crosswalk %d: layout unrecognized, year skipped", year))
			continue
		case err != nil:
			return nil, nil, eris.Wrapf(err, "pipeline: crosswalk %d", year)
		}
		id, err := p.register(ctx, logger, t.SourceName, "crosswalk", year, nil, len(t.Mappings), t.Columns)
		if err != nil {
			return nil, nil, err
		}
		if _, err := logger.LogLoad([]string{id}, "stg_crosswalk", len(t.Mappings),
			fmt.Sprintf("load %d plan crosswalk", year)); err != nil {
			return nil, nil, err
		}
		idx.AddTable(t)
		fileIDs = append(fileIDs, id)
		report.SchemaWarnings = append(report.SchemaWarnings, t.Warnings...)
		report.AmbiguousMappings += t.AmbiguousCount
		if t.AmbiguousCount > 0 {
			log.Warn("crosswalk has conflicting duplicate mappings",
				zap.Int("year", year), zap.Int("count", t.AmbiguousCount))
		}
	}
	return idx, fileIDs, nil
}

func (p *Pipeline) buildEntities(ctx context.Context, logger *audit.Logger, idx *entity.Index, xwalkIDs []string, loaded []*periodData, report *RunReport) error {
	b := &entity.Builder{
		Index:        idx,
		EarliestYear: p.Cfg.EarliestYear,
		Concurrency:  p.Cfg.Concurrency,
	}
	entities, err := b.Build(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: resolve entities")
	}

	inputs := xwalkIDs
	for _, d := range loaded {
		inputs = append(inputs, d.enrLoadID)
	}
	if _, err := logger.LogDerive(inputs, "entities", len(entities),
		"resolve entity chains across crosswalk years", "entity_id",
		"walk crosswalks backward from the latest observed identity; bridge gaps with assumed links"); err != nil {
		return eris.Wrap(err, "pipeline: audit entities")
	}
	if err := p.Store.ReplaceEntities(ctx, entities); err != nil {
		return eris.Wrap(err, "pipeline: store entities")
	}
	report.Entities = len(entities)
	return nil
}

func (p *Pipeline) buildParentOrgs(ctx context.Context, logger *audit.Logger, loaded []*periodData, report *RunReport) error {
	var (
		obs    []orgs.Observation
		inputs []string
	)
	for _, d := range loaded {
		if d.cpsc == nil {
			continue
		}
		inputs = append(inputs, d.cpscLoadID)
		for _, row := range d.cpsc {
			if row.ParentOrg == "" {
				continue
			}
			obs = append(obs, orgs.Observation{
				RawName:    row.ParentOrg,
				Year:       d.period.Year,
				ContractID: row.ContractID,
			})
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	identities := p.Orgs.BuildIdentities(obs)
	if _, err := logger.LogAggregate(inputs, "parent_orgs", len(identities),
		"canonicalize parent organizations across name changes and acquisitions",
		[]string{"canonical_name"}, map[string]string{"contracts": "collect", "name_history": "collect"}); err != nil {
		return eris.Wrap(err, "pipeline: audit parent orgs")
	}
	if err := p.Store.ReplaceParentOrgs(ctx, identities); err != nil {
		return eris.Wrap(err, "pipeline: store parent orgs")
	}
	report.ParentOrgs = len(identities)
	return nil
}

// reconcileRun cross-checks every built period and persists the
// results. Flagged periods are reported; only persistence can fail.
func (p *Pipeline) reconcileRun(ctx context.Context, logger *audit.Logger, log *zap.Logger, results []*periodResult, report *RunReport) error {
	var (
		inputs []reconcile.PeriodInput
		checks []model.DimensionCheck
	)
	for _, res := range results {
		report.FactRows += res.written
		checks = append(checks, res.checks...)
		if len(res.uncovered) > 0 {
			report.CoverageWarnings = append(report.CoverageWarnings,
				fmt.Sprintf("%s: %d contracts enrolled with no approved service area: %s",
					res.period, len(res.uncovered), strings.Join(res.uncovered, ", ")))
		}
		if res.hasSecondary {
			inputs = append(inputs, res.input)
		} else {
			log.Warn("no secondary total, period not reconciled",
				zap.String("period", res.period.String()))
		}
	}

	records := p.Recon.ReconcileAll(inputs)
	for _, r := range records {
		if r.Flagged {
			report.FlaggedPeriods = append(report.FlaggedPeriods, fmt.Sprintf("%d-%02d", r.Year, r.Month))
		}
	}
	if err := p.Store.ReplaceReconciliation(ctx, logger.RunID(), records, checks); err != nil {
		return eris.Wrap(err, "pipeline: store reconciliation")
	}
	report.Quality = reconcile.BuildQualityReport(records, checks)

	if p.Cfg.ArtifactDir != "" && len(records) > 0 {
		path, err := writeReconciliationCSV(p.Cfg.ArtifactDir, logger.RunID(), records)
		if err != nil {
			log.Warn("reconciliation artifact not written", zap.Error(err))
		} else {
			report.ArtifactPath = path
		}
	}
	return nil
}

// loadPeriod fetches and registers one period's publications. The
// enrollment report is mandatory; an unpublished or unreadable report
// marks the whole period as a gap. CPSC and SNP reports are optional.
func (p *Pipeline) loadPeriod(ctx context.Context, logger *audit.Logger, per Period) (*periodData, error) {
	d := &periodData{period: per}

	enr, enrMeta, err := sources.LoadEnrollment(ctx, p.Fetcher, per.Year, per.Month)
	if err != nil {
		return nil, err
	}
	d.enr = enr
	if d.enrID, err = p.register(ctx, logger, enrMeta.Name, "enrollment_plan", per.Year, &per.Month, enrMeta.Rows, enrMeta.Columns); err != nil {
		return nil, err
	}
	if d.enrLoadID, err = logger.LogLoad([]string{d.enrID}, "stg_enrollment", len(enr),
		fmt.Sprintf("load %s monthly enrollment by plan", per)); err != nil {
		return nil, err
	}

	cpsc, cpscMeta, err := sources.LoadContractInfo(ctx, p.Fetcher, per.Year, per.Month)
	switch {
	case eris.Is(err, sources.ErrSourceUnavailable):
		p.log.Warn("contract characteristics unpublished", zap.String("period", per.String()))
	case eris.Is(err, sources.ErrSchemaMismatch):
		p.log.Error("contract characteristics layout unrecognized, deriving without it",
			zap.String("period", per.String()), zap.Error(err))
	case err != nil:
		return nil, err
	default:
		d.cpsc = cpsc
		if d.cpscID, err = p.register(ctx, logger, cpscMeta.Name, "contract_info", per.Year, &per.Month, cpscMeta.Rows, cpscMeta.Columns); err != nil {
			return nil, err
		}
		if d.cpscLoadID, err = logger.LogLoad([]string{d.cpscID}, "stg_contract_info", len(cpsc),
			fmt.Sprintf("load %s contract/plan characteristics", per)); err != nil {
			return nil, err
		}
	}

	snp, snpMeta, err := sources.LoadSNP(ctx, p.Fetcher, per.Year, per.Month)
	switch {
	case eris.Is(err, sources.ErrSourceUnavailable):
		p.log.Debug("snp roster unpublished", zap.String("period", per.String()))
	case eris.Is(err, sources.ErrSchemaMismatch):
		p.log.Error("snp roster layout unrecognized, deriving without it",
			zap.String("period", per.String()), zap.Error(err))
	case err != nil:
		return nil, err
	default:
		d.snp = snp
		if d.snpID, err = p.register(ctx, logger, snpMeta.Name, "snp_report", per.Year, &per.Month, snpMeta.Rows, snpMeta.Columns); err != nil {
			return nil, err
		}
		if d.snpLoadID, err = logger.LogLoad([]string{d.snpID}, "stg_snp", len(snp),
			fmt.Sprintf("load %s special needs plan roster", per)); err != nil {
			return nil, err
		}
	}

	sa, saMeta, err := sources.LoadServiceArea(ctx, p.Fetcher, per.Year, per.Month)
	switch {
	case eris.Is(err, sources.ErrSourceUnavailable):
		p.log.Debug("service area unpublished", zap.String("period", per.String()))
	case eris.Is(err, sources.ErrSchemaMismatch):
		p.log.Error("service area layout unrecognized, skipping coverage check",
			zap.String("period", per.String()), zap.Error(err))
	case err != nil:
		return nil, err
	default:
		d.sa = sa
		if d.saID, err = p.register(ctx, logger, saMeta.Name, "service_area", per.Year, &per.Month, saMeta.Rows, saMeta.Columns); err != nil {
			return nil, err
		}
		if d.saLoadID, err = logger.LogLoad([]string{d.saID}, "stg_service_area", len(sa),
			fmt.Sprintf("load %s contract service areas", per)); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// register records a source file in the audit log. The file is
// re-fetched for hashing, which hits the fetch cache; a fetch failure
// here only costs the content hash.
func (p *Pipeline) register(ctx context.Context, logger *audit.Logger, name, fileType string, year int, month *int, rowCount int, columns []string) (string, error) {
	key := name
	if i := strings.IndexByte(key, '!'); i >= 0 {
		key = key[:i]
	}
	content, err := p.Fetcher.Fetch(ctx, key)
	if err != nil {
		p.log.Warn("source not re-fetchable for hashing", zap.String("uri", key), zap.Error(err))
		content = nil
	}
	id, err := logger.RegisterSourceFile(model.SourceFile{
		URI:         name,
		FileType:    fileType,
		Year:        year,
		Month:       month,
		RowCount:    rowCount,
		ColumnNames: columns,
	}, content)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: register %s", name)
	}
	return id, nil
}
