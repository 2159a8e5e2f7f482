package model

// Derivation is the outcome of deriving one categorical field for one record:
// the value, which rule branch produced it, and how much to trust it.
// Confidence is 0.0 exactly when the source is an unknown/assumed fallback.
type Derivation struct {
	FieldName  string  `json:"field_name"`
	Value      string  `json:"value"`
	SourceName string  `json:"source_name"`
	Confidence float64 `json:"confidence"`
}

// EnrollmentFact is one row of the unified fact table, grain
// (contract_id, plan_id, year, month).
type EnrollmentFact struct {
	ContractID string `json:"contract_id" csv:"contract_id"`
	PlanID     string `json:"plan_id" csv:"plan_id"`
	Year       int    `json:"year" csv:"year"`
	Month      int    `json:"month" csv:"month"`

	ParentOrg      string `json:"parent_org,omitempty" csv:"parent_org"`
	PlanType       string `json:"plan_type,omitempty" csv:"plan_type"`
	PlanTypeSimple string `json:"plan_type_simple,omitempty" csv:"plan_type_simple"`

	ProductType string `json:"product_type" csv:"product_type"`

	GroupType           string  `json:"group_type" csv:"group_type"`
	GroupTypeSource     string  `json:"group_type_source" csv:"group_type_source"`
	GroupTypeConfidence float64 `json:"group_type_confidence" csv:"group_type_confidence"`

	SNPType       string `json:"snp_type" csv:"snp_type"`
	SNPTypeSource string `json:"snp_type_source" csv:"snp_type_source"`

	Enrollment       int64  `json:"enrollment" csv:"enrollment"`
	EnrollmentSource string `json:"enrollment_source" csv:"enrollment_source"`
}
