package sources

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/fetcher"
)

// PlanEnrollment is one row of the monthly enrollment-by-plan report.
type PlanEnrollment struct {
	ContractID  string
	PlanID      string
	OrgName     string
	PlanName    string
	Enrollment  int64
	Suppressed  bool
	SourceEntry string
	Year, Month int
}

// LoadEnrollment loads the monthly enrollment-by-plan publication for
// one period. Returns ErrSourceUnavailable when the period was never
// published.
func LoadEnrollment(ctx context.Context, f fetcher.Fetcher, year, month int) ([]PlanEnrollment, SourceMeta, error) {
	rows, name, err := fetchTable(ctx, f, EnrollmentKeys(year, month), "by_plan")
	if err != nil {
		return nil, SourceMeta{}, err
	}
	h := newHeader(rows[0])
	ci, ok := h.find("Contract Number", "Contract ID")
	if !ok {
		ci, ok = h.findFuzzy("contract")
	}
	pi, pok := h.find("Plan ID", "Plan Number")
	if !pok {
		pi, pok = h.findFuzzy("plan", "id")
	}
	ei, eok := h.find("Enrollment", "Enrolled")
	if !eok {
		ei, eok = h.findFuzzy("enroll")
	}
	if !ok || !pok || !eok {
		return nil, SourceMeta{}, eris.Wrapf(ErrSchemaMismatch, "sources: enrollment %d-%02d header %v", year, month, rows[0])
	}
	oi, _ := h.find("Organization Marketing Name", "Organization Name")
	ni, _ := h.find("Plan Name")

	out := make([]PlanEnrollment, 0, len(rows)-1)
	for _, row := range rows[1:] {
		contract := cell(row, ci)
		if contract == "" {
			continue
		}
		n, suppressed, perr := ParseEnrollment(cell(row, ei))
		if perr != nil {
			return nil, SourceMeta{}, perr
		}
		out = append(out, PlanEnrollment{
			ContractID:  contract,
			PlanID:      PadPlanID(cell(row, pi)),
			OrgName:     cell(row, oi),
			PlanName:    cell(row, ni),
			Enrollment:  n,
			Suppressed:  suppressed,
			SourceEntry: name,
			Year:        year,
			Month:       month,
		})
	}
	return out, metaFor(name, rows), nil
}
