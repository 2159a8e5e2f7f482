// Package reconcile cross-checks the published enrollment totals. The
// primary by-plan total is compared against a second, independently
// suppressed source; suppressed records explain part of any gap, and
// only the unexplained remainder can flag a period. Results are data
// for the orchestrator, never a halt.
package reconcile

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/model"
)

// SuppressionMidpoint is the assumed enrollment per suppressed record.
// Counts of 1 through 10 are suppressed, so the midpoint is 5.5.
const SuppressionMidpoint = 5.5

// DefaultTolerance is the unexplained-discrepancy share above which a
// period gets flagged.
const DefaultTolerance = 0.003

// PeriodInput holds the two independent totals for one period.
// SuppressedRecordCount is taken from the secondary source, whose
// suppressed records are missing from SecondaryTotal.
type PeriodInput struct {
	Year                  int
	Month                 int
	PrimaryTotal          int64
	SecondaryTotal        int64
	SuppressedRecordCount int
}

// Reconciler compares totals with a configurable tolerance.
type Reconciler struct {
	Tolerance float64
	Midpoint  float64
}

func New() *Reconciler {
	return &Reconciler{Tolerance: DefaultTolerance, Midpoint: SuppressionMidpoint}
}

// Reconcile evaluates one period.
func (r *Reconciler) Reconcile(in PeriodInput) model.ReconciliationRecord {
	rec := model.ReconciliationRecord{
		Year:                  in.Year,
		Month:                 in.Month,
		PrimaryTotal:          in.PrimaryTotal,
		SecondaryTotal:        in.SecondaryTotal,
		SuppressedRecordCount: in.SuppressedRecordCount,
	}

	rec.Discrepancy = in.PrimaryTotal - in.SecondaryTotal
	rec.EstimatedSuppressedEnrollees = float64(in.SuppressedRecordCount) * r.Midpoint
	rec.UnexplainedDiscrepancy = float64(rec.Discrepancy) - rec.EstimatedSuppressedEnrollees

	if in.PrimaryTotal != 0 {
		rec.DiscrepancyPct = float64(rec.Discrepancy) / float64(in.PrimaryTotal)
		rec.Flagged = math.Abs(rec.UnexplainedDiscrepancy/float64(in.PrimaryTotal)) > r.Tolerance
	} else {
		// No primary enrollment: any secondary count is unexplained.
		rec.Flagged = in.SecondaryTotal != 0
	}

	if rec.Flagged {
		zap.L().Warn("reconciliation flagged period",
			zap.String("component", "reconcile"),
			zap.String("period", fmt.Sprintf("%d-%02d", in.Year, in.Month)),
			zap.Int64("discrepancy", rec.Discrepancy),
			zap.Float64("unexplained", rec.UnexplainedDiscrepancy))
	}
	return rec
}

// ReconcileAll evaluates every period, preserving input order.
func (r *Reconciler) ReconcileAll(inputs []PeriodInput) []model.ReconciliationRecord {
	out := make([]model.ReconciliationRecord, len(inputs))
	for i, in := range inputs {
		out[i] = r.Reconcile(in)
	}
	return out
}
