package derive

import (
	"strconv"
	"strings"

	"github.com/plansight/enroll-cli/internal/model"
)

// GroupType derives whether a plan serves the employer-group market.
// Rules are consulted in priority order and the first match wins:
// explicit group-plan flag, numeric plan-id heuristic, organization
// type keywords, then unknown.
func GroupType(eghpFlag, planID, orgType string) model.Derivation {
	d := model.Derivation{FieldName: "group_type"}

	switch strings.ToLower(strings.TrimSpace(eghpFlag)) {
	case "yes", "y", "true", "1":
		d.Value, d.SourceName, d.Confidence = GroupTypeGroup, SrcEGHPYes, 1.0
		return d
	case "no", "n", "false", "0":
		d.Value, d.SourceName, d.Confidence = GroupTypeIndividual, SrcEGHPNo, 0.95
		return d
	}

	if n, err := strconv.Atoi(strings.TrimSpace(planID)); err == nil {
		if n >= groupPlanIDThreshold {
			d.Value, d.SourceName, d.Confidence = GroupTypeGroup, SrcPlanIDGte800, 0.90
		} else {
			d.Value, d.SourceName, d.Confidence = GroupTypeIndividual, SrcPlanIDLt800, 0.85
		}
		return d
	}

	upper := strings.ToUpper(orgType)
	if strings.Contains(upper, "EMPLOYER") || strings.Contains(upper, "UNION") {
		d.Value, d.SourceName, d.Confidence = GroupTypeGroup, SrcOrgType, 0.85
		return d
	}

	d.Value, d.SourceName, d.Confidence = GroupTypeUnknown, SrcUnknown, 0.0
	return d
}

// ProductType classifies a contract by its identifier prefix and
// whether it carries a drug benefit. The mapping is deterministic, so
// no confidence accompanies it.
func ProductType(contractID string, offersPartD bool) string {
	contractID = strings.ToUpper(strings.TrimSpace(contractID))
	if contractID == "" {
		return ProductOther
	}
	switch contractID[0] {
	case 'S':
		return ProductPDP
	case 'H', 'R':
		if offersPartD {
			return ProductMAPD
		}
		return ProductMAOnly
	case 'E':
		return ProductEmployer
	}
	return ProductOther
}

// SNPType classifies the special-needs status of a plan. The SNP
// roster's free-text plan type is authoritative when present; the
// characteristics file's yes/no flag is the fallback; absent both, the
// plan is assumed not to be a SNP.
func SNPType(rosterDesc string, hasRoster bool, snpFlag string, hasFlag bool) model.Derivation {
	d := model.Derivation{FieldName: "snp_type"}

	if hasRoster {
		d.SourceName, d.Confidence = SrcSNPReport, 1.0
		upper := strings.ToUpper(rosterDesc)
		switch {
		case strings.Contains(upper, "DUAL"):
			d.Value = SNPDual
		case strings.Contains(upper, "CHRONIC"), strings.Contains(upper, "DISABLING"):
			d.Value = SNPChronic
		case strings.Contains(upper, "INSTITUTIONAL"):
			d.Value = SNPInstitutional
		default:
			d.Value = SNPUnknown
		}
		return d
	}

	if hasFlag {
		d.SourceName, d.Confidence = SrcCPSCFlag, 0.90
		switch strings.ToLower(strings.TrimSpace(snpFlag)) {
		case "yes", "y", "true", "1":
			d.Value = SNPUnknown
		default:
			d.Value = NonSNP
		}
		return d
	}

	d.Value, d.SourceName, d.Confidence = NonSNP, SrcAssumed, 0.0
	return d
}

// PlanTypeSimple collapses a published plan-type string into its
// reporting category. Unrecognized types pass through unchanged.
func PlanTypeSimple(planType string) string {
	key := strings.ToLower(strings.TrimSpace(planType))
	if key == "" {
		return "Unknown"
	}
	if simple, ok := planTypeSimple[key]; ok {
		return simple
	}
	// The published strings grow qualifiers over time; fall back to
	// keyword matching before passing the raw value through.
	switch {
	case strings.Contains(key, "hmo"):
		return "HMO"
	case strings.Contains(key, "regional ppo"):
		return "RPPO"
	case strings.Contains(key, "ppo"):
		return "PPO"
	case strings.Contains(key, "fee-for-service"), strings.Contains(key, "pffs"):
		return "PFFS"
	case strings.Contains(key, "cost"):
		return "Cost"
	case strings.Contains(key, "pace"):
		return "PACE"
	case strings.Contains(key, "employer"):
		return "Employer"
	case strings.Contains(key, "drug"):
		return "PDP"
	}
	return strings.TrimSpace(planType)
}
