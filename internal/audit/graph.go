package audit

import "github.com/plansight/enroll-cli/internal/model"

// Report projects the run's audit log into a lineage graph. Source
// files and transformations become nodes; each transformation gets an
// edge from every input. Pure projection over the recorded log.
func (l *Logger) Report() model.LineageReport {
	run, files, transforms := l.Snapshot()

	r := model.LineageReport{
		RunID:           run.RunID,
		PipelineName:    run.PipelineName,
		SourceFiles:     files,
		Transformations: transforms,
	}
	for _, f := range files {
		r.Nodes = append(r.Nodes, model.LineageNode{
			ID:    f.FileID,
			Type:  "source",
			Label: f.URI,
		})
	}
	for _, t := range transforms {
		r.Nodes = append(r.Nodes, model.LineageNode{
			ID:    t.TransformID,
			Type:  "transform",
			Label: string(t.Kind) + ": " + t.Description,
		})
		for _, in := range t.InputIDs {
			r.Edges = append(r.Edges, model.LineageEdge{From: in, To: t.TransformID})
		}
	}
	return r
}
