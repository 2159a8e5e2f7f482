package sources

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/fetcher"
)

// ServiceArea is one county a contract is approved to operate in.
type ServiceArea struct {
	ContractID string
	State      string
	County     string
	SSACode    string
	FIPSCode   string
}

// LoadServiceArea loads the contract service-area publication for one
// period.
func LoadServiceArea(ctx context.Context, f fetcher.Fetcher, year, month int) ([]ServiceArea, SourceMeta, error) {
	rows, name, err := fetchTable(ctx, f, ServiceAreaKeys(year, month), "sa")
	if err != nil {
		return nil, SourceMeta{}, err
	}
	h := newHeader(rows[0])
	ci, ok := h.find("Contract ID", "Contract Number")
	if !ok {
		ci, ok = h.findFuzzy("contract")
	}
	if !ok {
		return nil, SourceMeta{}, eris.Wrapf(ErrSchemaMismatch, "sources: service area %d-%02d header %v", year, month, rows[0])
	}
	sti, _ := h.find("State", "State Name")
	coi, _ := h.find("County", "County Name")
	ssi, _ := h.find("SSA Code", "SSA County Code", "SSA")
	fpi, _ := h.find("FIPS Code", "FIPS County Code", "FIPS")

	out := make([]ServiceArea, 0, len(rows)-1)
	for _, row := range rows[1:] {
		contract := cell(row, ci)
		if contract == "" {
			continue
		}
		out = append(out, ServiceArea{
			ContractID: contract,
			State:      cell(row, sti),
			County:     cell(row, coi),
			SSACode:    cell(row, ssi),
			FIPSCode:   cell(row, fpi),
		})
	}
	return out, metaFor(name, rows), nil
}
