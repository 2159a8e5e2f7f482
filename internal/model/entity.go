package model

import "time"

// LinkSource tags how one year-step of an identity chain was resolved.
type LinkSource string

const (
	// LinkCurrent is the chain head, taken from the latest snapshot.
	LinkCurrent LinkSource = "current"
	// LinkCrosswalk is a mapping confirmed by a published crosswalk row.
	LinkCrosswalk LinkSource = "crosswalk"
	// LinkAssumedStable means a crosswalk existed for the year but carried no
	// row for this pair; the ids are presumed unchanged (or the plan is new).
	LinkAssumedStable LinkSource = "assumed_stable"
	// LinkNoCrosswalk means no crosswalk file was available for the year.
	LinkNoCrosswalk LinkSource = "no_crosswalk"
)

// Confidence returns the lineage confidence of a link source. Confirmed
// links score 1.0; the two best-effort guesses carry explicit lower marks so
// they are never presented as equivalent to crosswalk-confirmed links.
func (s LinkSource) Confidence() float64 {
	switch s {
	case LinkCurrent, LinkCrosswalk:
		return 1.0
	case LinkAssumedStable:
		return 0.5
	case LinkNoCrosswalk:
		return 0.25
	default:
		return 0
	}
}

// ChainLink is one (year, contract, plan) step of an identity chain.
type ChainLink struct {
	Year       int        `json:"year"`
	ContractID string     `json:"contract_id"`
	PlanID     string     `json:"plan_id"`
	Source     LinkSource `json:"source"`
	Confidence float64    `json:"confidence"`
}

// Entity is one stable plan lineage, stitched across years of identifier
// churn. Rebuilt wholesale each run, never patched.
type Entity struct {
	EntityID           string      `json:"entity_id"`
	CurrentContractID  string      `json:"current_contract_id"`
	CurrentPlanID      string      `json:"current_plan_id"`
	FirstYear          int         `json:"first_year"`
	LastYear           int         `json:"last_year"`
	IdentityChain      []ChainLink `json:"identity_chain"`
	ChainLength        int         `json:"chain_length"`
	CrosswalkLinkCount int         `json:"crosswalk_link_count"`
	CreatedAt          time.Time   `json:"created_at"`
}
