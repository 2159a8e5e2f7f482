package sources

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/fetcher"
)

// ContractInfo is one row of the contract/plan characteristics report.
// Flag fields keep the published yes/no text; empty means unpublished.
type ContractInfo struct {
	ContractID  string
	PlanID      string
	OrgType     string
	PlanType    string
	OffersPartD bool
	SNPFlag     string
	EGHPFlag    string
	OrgName     string
	ParentOrg   string
	Enrollment  int64
	Suppressed  bool
}

// LoadContractInfo loads the contract/plan characteristics publication
// for one period.
func LoadContractInfo(ctx context.Context, f fetcher.Fetcher, year, month int) ([]ContractInfo, SourceMeta, error) {
	rows, name, err := fetchTable(ctx, f, CPSCKeys(year, month), "contract_info")
	if err != nil {
		return nil, SourceMeta{}, err
	}
	h := newHeader(rows[0])
	ci, ok := h.find("Contract ID", "Contract Number")
	if !ok {
		ci, ok = h.findFuzzy("contract")
	}
	pi, pok := h.find("Plan ID")
	if !pok {
		pi, pok = h.findFuzzy("plan", "id")
	}
	if !ok || !pok {
		return nil, SourceMeta{}, eris.Wrapf(ErrSchemaMismatch, "sources: cpsc %d-%02d header %v", year, month, rows[0])
	}
	oti, _ := h.find("Organization Type")
	pti, _ := h.find("Plan Type")
	pdi, _ := h.find("Offers Part D")
	sni, _ := h.find("SNP Plan", "Special Needs Plan")
	egi, _ := h.find("EGHP", "Employer Group Waiver Plan")
	oni, _ := h.find("Organization Marketing Name", "Organization Name")
	poi, _ := h.find("Parent Organization")
	eni, _ := h.find("Enrollment")

	out := make([]ContractInfo, 0, len(rows)-1)
	for _, row := range rows[1:] {
		contract := cell(row, ci)
		if contract == "" {
			continue
		}
		rec := ContractInfo{
			ContractID:  contract,
			PlanID:      PadPlanID(cell(row, pi)),
			OrgType:     cell(row, oti),
			PlanType:    cell(row, pti),
			OffersPartD: isYes(cell(row, pdi)),
			SNPFlag:     strings.ToLower(cell(row, sni)),
			EGHPFlag:    strings.ToLower(cell(row, egi)),
			OrgName:     cell(row, oni),
			ParentOrg:   cell(row, poi),
		}
		if eni >= 0 {
			n, suppressed, perr := ParseEnrollment(cell(row, eni))
			if perr != nil {
				return nil, SourceMeta{}, perr
			}
			rec.Enrollment = n
			rec.Suppressed = suppressed
		}
		out = append(out, rec)
	}
	return out, metaFor(name, rows), nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}
