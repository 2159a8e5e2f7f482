package audit

import (
	"sort"

	"github.com/plansight/enroll-cli/internal/model"
)

// TraceRecordLineage resolves an output record back to the ordered
// chain of transformations and source files that produced its table.
// The second return is false when no transformation in this run wrote
// the table; an unresolvable trace is an answer, not an error.
func (l *Logger) TraceRecordLineage(outputTable string, recordKey map[string]any) (model.RecordLineage, bool) {
	_, files, transforms := l.Snapshot()
	return Trace(files, transforms, outputTable, recordKey)
}

// Trace walks a persisted audit log the same way TraceRecordLineage
// walks a live one, so past runs can be traced from the store.
func Trace(files []model.SourceFile, transforms []model.Transformation, outputTable string, recordKey map[string]any) (model.RecordLineage, bool) {
	// The last transformation writing the table is the record's producer.
	var root *model.Transformation
	for i := len(transforms) - 1; i >= 0; i-- {
		if transforms[i].OutputTable == outputTable {
			root = &transforms[i]
			break
		}
	}
	if root == nil {
		return model.RecordLineage{}, false
	}

	byID := make(map[string]model.Transformation, len(transforms))
	for _, t := range transforms {
		byID[t.TransformID] = t
	}
	fileByID := make(map[string]model.SourceFile, len(files))
	for _, f := range files {
		fileByID[f.FileID] = f
	}

	seen := make(map[string]struct{})
	var chainT []model.Transformation
	var chainF []model.SourceFile

	var visit func(id string)
	visit = func(id string) {
		if _, done := seen[id]; done {
			return
		}
		seen[id] = struct{}{}
		if t, ok := byID[id]; ok {
			chainT = append(chainT, t)
			for _, in := range t.InputIDs {
				visit(in)
			}
			return
		}
		if f, ok := fileByID[id]; ok {
			chainF = append(chainF, f)
		}
	}
	visit(root.TransformID)

	// Present the chain source-first in log order.
	sort.Slice(chainT, func(i, j int) bool { return chainT[i].Seq < chainT[j].Seq })
	sort.Slice(chainF, func(i, j int) bool { return chainF[i].FileID < chainF[j].FileID })

	return model.RecordLineage{
		OutputTable:     outputTable,
		RecordKey:       recordKey,
		SourceFiles:     chainF,
		Transformations: chainT,
	}, true
}
