package sources

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/fetcher"
)

// SNPRecord is one row of the special-needs-plan comprehensive report.
// Description holds the published plan-type text, which names the
// population served (dual-eligible, chronic condition, institutional).
type SNPRecord struct {
	ContractID  string
	PlanID      string
	Description string
	Enrollment  int64
	Suppressed  bool
}

// LoadSNP loads the special-needs-plan roster for one period.
func LoadSNP(ctx context.Context, f fetcher.Fetcher, year, month int) ([]SNPRecord, SourceMeta, error) {
	rows, name, err := fetchTable(ctx, f, SNPKeys(year, month), "snp")
	if err != nil {
		return nil, SourceMeta{}, err
	}
	h := newHeader(rows[0])
	ci, ok := h.find("Contract Number", "Contract ID")
	if !ok {
		ci, ok = h.findFuzzy("contract")
	}
	pi, pok := h.find("Plan ID")
	if !pok {
		pi, pok = h.findFuzzy("plan", "id")
	}
	di, dok := h.find("Special Needs Plan Type", "SNP Type", "Plan Type")
	if !dok {
		di, dok = h.findFuzzy("special", "type")
	}
	if !ok || !pok || !dok {
		return nil, SourceMeta{}, eris.Wrapf(ErrSchemaMismatch, "sources: snp %d-%02d header %v", year, month, rows[0])
	}
	eni, _ := h.find("Enrollment", "Enrolled")

	out := make([]SNPRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		contract := cell(row, ci)
		if contract == "" {
			continue
		}
		rec := SNPRecord{
			ContractID:  contract,
			PlanID:      PadPlanID(cell(row, pi)),
			Description: cell(row, di),
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
