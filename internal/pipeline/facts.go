package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/audit"
	"github.com/plansight/enroll-cli/internal/derive"
	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/reconcile"
	"github.com/plansight/enroll-cli/internal/sources"
)

// planKey indexes the side tables joined onto the enrollment report.
type planKey struct {
	contractID string
	planID     string
}

// periodResult is what one period's fact build hands back to the
// run-level reconciliation.
type periodResult struct {
	period       Period
	written      int64
	input        reconcile.PeriodInput
	hasSecondary bool
	checks       []model.DimensionCheck
	uncovered    []string
}

// buildPeriod joins one period's publications into fact rows, derives
// the categorical dimensions, and replaces the period's partition.
// Every row in the enrollment report yields a fact; absent side tables
// only lower derivation confidence.
func (p *Pipeline) buildPeriod(ctx context.Context, logger *audit.Logger, d *periodData) (*periodResult, error) {
	per := d.period

	info := make(map[planKey]sources.ContractInfo, len(d.cpsc))
	for _, row := range d.cpsc {
		info[planKey{row.ContractID, row.PlanID}] = row
	}
	roster := make(map[planKey]sources.SNPRecord, len(d.snp))
	for _, row := range d.snp {
		roster[planKey{row.ContractID, row.PlanID}] = row
	}

	var (
		facts   []model.EnrollmentFact
		primary int64
	)
	for _, row := range d.enr {
		ci, hasInfo := info[planKey{row.ContractID, row.PlanID}]
		snp, hasRoster := roster[planKey{row.ContractID, row.PlanID}]

		f := model.EnrollmentFact{
			ContractID: row.ContractID,
			PlanID:     row.PlanID,
			Year:       per.Year,
			Month:      per.Month,
		}
		if hasInfo {
			f.PlanType = ci.PlanType
			f.PlanTypeSimple = derive.PlanTypeSimple(ci.PlanType)
			if ci.ParentOrg != "" {
				f.ParentOrg = p.Orgs.Canonical(ci.ParentOrg, per.Year)
			}
		}

		g := derive.GroupType(ci.EGHPFlag, row.PlanID, ci.OrgType)
		f.GroupType = g.Value
		f.GroupTypeSource = g.SourceName
		f.GroupTypeConfidence = g.Confidence

		f.ProductType = derive.ProductType(row.ContractID, hasInfo && ci.OffersPartD)

		s := derive.SNPType(snp.Description, hasRoster, ci.SNPFlag, hasInfo && ci.SNPFlag != "")
		f.SNPType = s.Value
		f.SNPTypeSource = s.SourceName

		if row.Suppressed {
			f.Enrollment = 0
			f.EnrollmentSource = "suppressed"
		} else {
			f.Enrollment = row.Enrollment
			f.EnrollmentSource = "monthly_report"
			primary += row.Enrollment
		}
		facts = append(facts, f)
	}

	if err := p.auditPeriod(logger, d, len(facts)); err != nil {
		return nil, err
	}

	written, err := p.Store.ReplaceFactPartition(ctx, per.Year, per.Month, facts)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: store facts %s", per)
	}

	res := &periodResult{
		period:  per,
		written: written,
		checks:  reconcile.CheckDimensions(per.Year, per.Month, facts),
	}
	if d.sa != nil {
		res.uncovered, err = p.checkServiceAreas(logger, d)
		if err != nil {
			return nil, err
		}
	}
	if d.cpsc != nil {
		// Suppression is counted on the secondary side: its suppressed
		// records are what the estimated-enrollee midpoint explains.
		var (
			secondary  int64
			suppressed int
		)
		for _, row := range d.cpsc {
			if row.Suppressed {
				suppressed++
				continue
			}
			secondary += row.Enrollment
		}
		res.hasSecondary = true
		res.input = reconcile.PeriodInput{
			Year:                  per.Year,
			Month:                 per.Month,
			PrimaryTotal:          primary,
			SecondaryTotal:        secondary,
			SuppressedRecordCount: suppressed,
		}
	}
	return res, nil
}

// checkServiceAreas flags contracts reporting enrollment outside any
// approved county. A hit usually means the two publications disagree
// on the contract's status for the month.
func (p *Pipeline) checkServiceAreas(logger *audit.Logger, d *periodData) ([]string, error) {
	approved := make(map[string]struct{}, len(d.sa))
	for _, row := range d.sa {
		approved[row.ContractID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var uncovered []string
	for _, row := range d.enr {
		if _, ok := approved[row.ContractID]; ok {
			continue
		}
		if _, dup := seen[row.ContractID]; dup {
			continue
		}
		seen[row.ContractID] = struct{}{}
		uncovered = append(uncovered, row.ContractID)
	}
	sort.Strings(uncovered)

	if len(uncovered) > 0 {
		if _, err := logger.LogFilter([]string{d.enrLoadID, d.saLoadID}, "stg_service_gaps", len(uncovered),
			fmt.Sprintf("contracts enrolled in %s with no approved service area", d.period),
			"contract_id not in service_area"); err != nil {
			return nil, eris.Wrap(err, "pipeline: audit service gaps")
		}
	}
	return uncovered, nil
}

// auditPeriod writes the join and derive entries for one period's fact
// build. Input IDs chain off the period's load transformations, so the
// lineage graph reaches back to the registered files.
func (p *Pipeline) auditPeriod(logger *audit.Logger, d *periodData, rowCount int) error {
	per := d.period
	upstream := []string{d.enrLoadID}

	if d.cpscLoadID != "" {
		id, err := logger.LogJoin([]string{d.enrLoadID, d.cpscLoadID}, "stg_enrollment_info", rowCount,
			fmt.Sprintf("join %s enrollment to contract characteristics", per),
			[]string{"contract_id", "plan_id"}, "left")
		if err != nil {
			return eris.Wrap(err, "pipeline: audit join")
		}
		upstream = []string{id}
	}
	if d.snpLoadID != "" {
		id, err := logger.LogJoin(append(upstream, d.snpLoadID), "stg_enrollment_snp", rowCount,
			fmt.Sprintf("join %s enrollment to snp roster", per),
			[]string{"contract_id", "plan_id"}, "left")
		if err != nil {
			return eris.Wrap(err, "pipeline: audit join")
		}
		upstream = []string{id}
	}

	derivations := []struct {
		field string
		logic string
	}{
		{"group_type", "eghp flag, then plan id threshold, then organization type keyword"},
		{"product_type", "contract prefix with part d coverage"},
		{"snp_type", "snp roster population, then cpsc snp flag"},
	}
	for _, dv := range derivations {
		id, err := logger.LogDerive(upstream, "enrollment_fact", rowCount,
			fmt.Sprintf("derive %s for %s", dv.field, per), dv.field, dv.logic)
		if err != nil {
			return eris.Wrapf(err, "pipeline: audit derive %s", dv.field)
		}
		upstream = []string{id}
	}
	return nil
}
