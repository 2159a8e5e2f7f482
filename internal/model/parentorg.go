package model

import "time"

// NameUse records one raw organization name and the years it was observed.
type NameUse struct {
	Name  string `json:"name"`
	Years []int  `json:"years"`
}

// OrgEvent records one merger/acquisition/rebrand applied to an organization.
type OrgEvent struct {
	Year         int    `json:"year"`
	EventType    string `json:"event_type"` // acquisition or rebrand
	AcquiredName string `json:"acquired_name"`
	Notes        string `json:"notes,omitempty"`
}

// ParentOrgIdentity is the canonical identity of one parent organization.
// CanonicalName may name an organization never literally observed, e.g. the
// acquirer in a merger whose own contracts were filed under subsidiary names.
type ParentOrgIdentity struct {
	ParentOrgID    string     `json:"parent_org_id"`
	CanonicalName  string     `json:"canonical_name"`
	NameVariations []string   `json:"name_variations"`
	NameHistory    []NameUse  `json:"name_history"`
	MAHistory      []OrgEvent `json:"ma_history"`
	FirstYear      int        `json:"first_year"`
	LastYear       int        `json:"last_year"`
	ContractCount  int        `json:"contract_count"`
	CreatedAt      time.Time  `json:"created_at"`
}
