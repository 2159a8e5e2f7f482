// Package derive computes the categorical dimensions of an enrollment
// record from prioritized, possibly-absent sources. Every derivation
// carries the source tag of the rule that fired and its confidence;
// every rule chain terminates in a zero-confidence fallback, so
// derivation never fails.
package derive

// Source tags for group_type derivation, in priority order.
const (
	SrcEGHPYes       = "eghp_yes"
	SrcEGHPNo        = "eghp_no"
	SrcPlanIDGte800  = "plan_id_gte_800"
	SrcPlanIDLt800   = "plan_id_lt_800"
	SrcOrgType       = "org_type"
	SrcUnknown       = "unknown"
)

// Source tags for snp_type derivation.
const (
	SrcSNPReport = "snp_report"
	SrcCPSCFlag  = "cpsc_flag"
	SrcAssumed   = "assumed"
)

// Group-type values.
const (
	GroupTypeGroup      = "Group"
	GroupTypeIndividual = "Individual"
	GroupTypeUnknown    = "Unknown"
)

// Product-type values.
const (
	ProductPDP      = "PDP"
	ProductMAPD     = "MAPD"
	ProductMAOnly   = "MA-only"
	ProductEmployer = "Employer"
	ProductOther    = "Other"
)

// SNP-type values.
const (
	SNPDual          = "D-SNP"
	SNPChronic       = "C-SNP"
	SNPInstitutional = "I-SNP"
	SNPUnknown       = "SNP-Unknown"
	NonSNP           = "Non-SNP"
)

// groupPlanIDThreshold splits employer-group plan numbers from
// individual-market ones.
const groupPlanIDThreshold = 800

// planTypeSimple collapses the published plan-type strings into the
// handful of categories the serving layer reports on.
var planTypeSimple = map[string]string{
	"hmo":                          "HMO",
	"hmo/hmopos":                   "HMO",
	"hmopos":                       "HMO",
	"hmo c-snp":                    "HMO",
	"hmo d-snp":                    "HMO",
	"local ppo":                    "PPO",
	"ppo":                          "PPO",
	"regional ppo":                 "RPPO",
	"pffs":                         "PFFS",
	"private fee-for-service":      "PFFS",
	"msa":                          "MSA",
	"medicare savings account":     "MSA",
	"national pace":                "PACE",
	"pace":                         "PACE",
	"1876 cost":                    "Cost",
	"hcpp - 1833 cost":             "Cost",
	"cost":                         "Cost",
	"medicare prescription drug plan": "PDP",
	"pdp":                          "PDP",
	"employer/union only direct contract pdp": "Employer",
	"employer/union only direct contract":     "Employer",
}
