package query

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/store"
)

// Lineage resolves an audited query back to its provenance: the
// tables it touched, the transformations that last built each table,
// and the raw files at the bottom of the chain.
type Lineage struct {
	AuditID         string                            `json:"audit_id"`
	RunID           string                            `json:"run_id,omitempty"`
	TablesAccessed  []string                          `json:"tables_accessed"`
	TablesLineage   map[string][]model.Transformation `json:"tables_lineage"`
	FullSourceChain []model.SourceFile                `json:"full_source_chain"`
}

// TraceQueryLineage resolves the lineage of a past audited query using
// the most recent successful run's transformation log. The second
// return is false when the audit id is unknown; an unresolvable trace
// is an answer, not an error.
func (e *Engine) TraceQueryLineage(ctx context.Context, auditID string) (*Lineage, bool, error) {
	audit, err := e.store.GetQueryAudit(ctx, auditID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "query: load audit entry")
	}

	lineage := &Lineage{
		AuditID:        auditID,
		TablesAccessed: audit.TablesAccessed,
		TablesLineage:  make(map[string][]model.Transformation),
	}

	runs, err := e.store.ListRuns(ctx, store.RunFilter{Status: model.RunStatusSuccess, Limit: 1})
	if err != nil {
		return nil, false, eris.Wrap(err, "query: find latest run")
	}
	if len(runs) == 0 {
		// Audited but nothing built yet: lineage is empty, not an error.
		return lineage, true, nil
	}
	run := runs[0]
	lineage.RunID = run.RunID

	transforms, err := e.store.GetTransformations(ctx, run.RunID)
	if err != nil {
		return nil, false, eris.Wrapf(err, "query: load transformations for run %s", run.RunID)
	}
	files, err := e.store.GetSourceFiles(ctx, run.RunID)
	if err != nil {
		return nil, false, eris.Wrapf(err, "query: load source files for run %s", run.RunID)
	}

	byID := make(map[string]model.Transformation, len(transforms))
	for _, t := range transforms {
		byID[t.TransformID] = t
	}
	fileByID := make(map[string]model.SourceFile, len(files))
	for _, f := range files {
		fileByID[f.FileID] = f
	}

	seenFiles := make(map[string]struct{})
	for _, table := range audit.TablesAccessed {
		chain, fileIDs := traceTable(table, transforms, byID)
		if len(chain) == 0 {
			continue
		}
		lineage.TablesLineage[table] = chain
		for _, id := range fileIDs {
			if _, dup := seenFiles[id]; dup {
				continue
			}
			seenFiles[id] = struct{}{}
			if f, ok := fileByID[id]; ok {
				lineage.FullSourceChain = append(lineage.FullSourceChain, f)
			}
		}
	}
	return lineage, true, nil
}

// traceTable walks backward from the last transformation writing the
// table and returns the contributing transformations in log order plus
// the source-file ids they consumed.
func traceTable(table string, transforms []model.Transformation, byID map[string]model.Transformation) ([]model.Transformation, []string) {
	var root *model.Transformation
	for i := len(transforms) - 1; i >= 0; i-- {
		if transforms[i].OutputTable == table {
			root = &transforms[i]
			break
		}
	}
	if root == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var chain []model.Transformation
	var fileIDs []string

	var visit func(id string)
	visit = func(id string) {
		if _, done := seen[id]; done {
			return
		}
		seen[id] = struct{}{}
		if t, ok := byID[id]; ok {
			chain = append(chain, t)
			for _, in := range t.InputIDs {
				visit(in)
			}
			return
		}
		fileIDs = append(fileIDs, id)
	}
	visit(root.TransformID)

	sort.Slice(chain, func(i, j int) bool { return chain[i].Seq < chain[j].Seq })
	return chain, fileIDs
}
