package reconcile

import (
	"github.com/plansight/enroll-cli/internal/derive"
	"github.com/plansight/enroll-cli/internal/model"
)

// dimensions are the categorical fields whose breakdowns must sum to
// the period grand total.
var dimensions = []string{"product_type", "group_type", "snp_type"}

// CheckDimensions re-aggregates one period's facts by each categorical
// dimension and asserts the breakdown sums to the grand total. Facts
// are integral counts, so the sums must match exactly; any shortfall
// is attributed to its largest bucket.
func CheckDimensions(year, month int, facts []model.EnrollmentFact) []model.DimensionCheck {
	var total int64
	for _, f := range facts {
		total += f.Enrollment
	}

	checks := make([]model.DimensionCheck, 0, len(dimensions))
	for _, dim := range dimensions {
		breakdown := make(map[string]int64)
		var sum int64
		for _, f := range facts {
			v := dimensionValue(f, dim)
			breakdown[v] += f.Enrollment
			sum += f.Enrollment
		}

		check := model.DimensionCheck{
			Year:         year,
			Month:        month,
			Dimension:    dim,
			Total:        total,
			DimensionSum: sum,
			Breakdown:    breakdown,
			Discrepancy:  total - sum,
			Valid:        total == sum,
		}
		if total > 0 {
			check.UnknownPct = float64(breakdown[derive.GroupTypeUnknown]+breakdown[derive.SNPUnknown]) / float64(total)
		}
		if !check.Valid {
			check.ShortfallBucket = largestBucket(breakdown)
		}
		checks = append(checks, check)
	}
	return checks
}

// ValidateBreakdown checks a pre-aggregated breakdown (typically read
// back from a serving table) against an independently computed total.
// Rows lost to null dimension values show up here as a shortfall.
func ValidateBreakdown(year, month int, dimension string, total int64, breakdown map[string]int64) model.DimensionCheck {
	var sum int64
	for _, v := range breakdown {
		sum += v
	}
	check := model.DimensionCheck{
		Year:         year,
		Month:        month,
		Dimension:    dimension,
		Total:        total,
		DimensionSum: sum,
		Breakdown:    breakdown,
		Discrepancy:  total - sum,
		Valid:        total == sum,
	}
	if total > 0 {
		check.UnknownPct = float64(breakdown[derive.GroupTypeUnknown]+breakdown[derive.SNPUnknown]) / float64(total)
	}
	if !check.Valid {
		check.ShortfallBucket = largestBucket(breakdown)
	}
	return check
}

func dimensionValue(f model.EnrollmentFact, dim string) string {
	var v string
	switch dim {
	case "product_type":
		v = f.ProductType
	case "group_type":
		v = f.GroupType
	case "snp_type":
		v = f.SNPType
	}
	if v == "" {
		return derive.GroupTypeUnknown
	}
	return v
}

func largestBucket(breakdown map[string]int64) string {
	var name string
	var max int64 = -1
	for k, v := range breakdown {
		if v > max || (v == max && k < name) {
			name, max = k, v
		}
	}
	return name
}
