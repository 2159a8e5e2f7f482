// Package audit records the full provenance of one pipeline run: every
// raw file registered, every transformation applied, and the run's
// terminal state. The log is append-only and run-scoped; once a run
// finishes, further logging is an error.
package audit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/model"
)

// ErrRunFinished is returned when logging is attempted after FinishRun.
var ErrRunFinished = eris.New("audit: run already finished")

// ErrUnknownInput is returned when a transformation references an id
// that was never registered or logged in this run.
var ErrUnknownInput = eris.New("audit: input id not registered in this run")

// hashSizeLimit caps content hashing. Hashing is best-effort evidence,
// not integrity protection, so oversized files skip it.
const hashSizeLimit = 100 << 20

// Persister stores a finished run's audit artifacts.
type Persister interface {
	SaveRun(ctx context.Context, run model.PipelineRun) error
	ReplaceSourceFiles(ctx context.Context, runID string, files []model.SourceFile) error
	ReplaceTransformations(ctx context.Context, runID string, transforms []model.Transformation) error
	SaveRunSummary(ctx context.Context, runID string, summary []byte) error
}

// Logger accumulates the audit log for one pipeline run. Safe for
// concurrent use; sequence numbers are assigned under the lock, so the
// log order is the commit order.
type Logger struct {
	mu         sync.Mutex
	run        model.PipelineRun
	files      []model.SourceFile
	transforms []model.Transformation
	known      map[string]struct{}
	seq        int64
	finished   bool

	persister Persister
	log       *zap.Logger
}

// NewLogger starts the audit log for a new run.
func NewLogger(pipelineName string, persister Persister) *Logger {
	runID := uuid.NewString()
	return &Logger{
		run: model.PipelineRun{
			RunID:        runID,
			PipelineName: pipelineName,
			StartedAt:    time.Now().UTC(),
			Status:       model.RunStatusRunning,
		},
		known:     make(map[string]struct{}),
		persister: persister,
		log:       zap.L().With(zap.String("component", "audit"), zap.String("run_id", runID)),
	}
}

// RunID returns the run this logger is scoped to.
func (l *Logger) RunID() string {
	return l.run.RunID
}

// RegisterSourceFile records a raw input file and returns its file id.
// The caller describes the file (URI, FileType, Year, Month, RowCount,
// ColumnNames); the id, size, content hash, and timestamps are
// assigned here. Content is hashed unless it exceeds the size limit.
func (l *Logger) RegisterSourceFile(f model.SourceFile, content []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return "", eris.Wrapf(ErrRunFinished, "audit: register %s", f.URI)
	}

	now := time.Now().UTC()
	f.FileID = fmt.Sprintf("%s-F%04d", shortID(l.run.RunID), len(l.files)+1)
	f.SizeBytes = int64(len(content))
	f.DiscoveredAt = now
	f.LastProcessed = now
	f.ContentHash = ""
	if len(content) <= hashSizeLimit {
		sum := md5.Sum(content)
		f.ContentHash = hex.EncodeToString(sum[:])
	}
	l.files = append(l.files, f)
	l.known[f.FileID] = struct{}{}
	return f.FileID, nil
}

// LogLoad records reading a source file into a table.
func (l *Logger) LogLoad(inputIDs []string, outputTable string, rowCount int, description string) (string, error) {
	return l.append(model.Transformation{
		Kind:           model.TransformLoad,
		InputIDs:       inputIDs,
		OutputTable:    outputTable,
		OutputRowCount: rowCount,
		Description:    description,
	})
}

// LogJoin records joining two or more inputs.
func (l *Logger) LogJoin(inputIDs []string, outputTable string, rowCount int, description string, joinKeys []string, joinType string) (string, error) {
	return l.append(model.Transformation{
		Kind:           model.TransformJoin,
		InputIDs:       inputIDs,
		OutputTable:    outputTable,
		OutputRowCount: rowCount,
		Description:    description,
		JoinKeys:       joinKeys,
		JoinType:       joinType,
	})
}

// LogDerive records deriving a field.
func (l *Logger) LogDerive(inputIDs []string, outputTable string, rowCount int, description, derivedField, logic string) (string, error) {
	return l.append(model.Transformation{
		Kind:            model.TransformDerive,
		InputIDs:        inputIDs,
		OutputTable:     outputTable,
		OutputRowCount:  rowCount,
		Description:     description,
		DerivedField:    derivedField,
		DerivationLogic: logic,
	})
}

// LogAggregate records a group-by aggregation.
func (l *Logger) LogAggregate(inputIDs []string, outputTable string, rowCount int, description string, groupBy []string, aggFunctions map[string]string) (string, error) {
	return l.append(model.Transformation{
		Kind:           model.TransformAggregate,
		InputIDs:       inputIDs,
		OutputTable:    outputTable,
		OutputRowCount: rowCount,
		Description:    description,
		GroupByFields:  groupBy,
		AggFunctions:   aggFunctions,
	})
}

// LogFilter records dropping rows by a condition.
func (l *Logger) LogFilter(inputIDs []string, outputTable string, rowCount int, description, condition string) (string, error) {
	return l.append(model.Transformation{
		Kind:            model.TransformFilter,
		InputIDs:        inputIDs,
		OutputTable:     outputTable,
		OutputRowCount:  rowCount,
		Description:     description,
		FilterCondition: condition,
	})
}

// append validates inputs and commits a transformation to the log.
func (l *Logger) append(t model.Transformation) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return "", eris.Wrapf(ErrRunFinished, "audit: log %s to %s", t.Kind, t.OutputTable)
	}
	if len(t.InputIDs) == 0 {
		return "", eris.Errorf("audit: %s transformation has no inputs", t.Kind)
	}
	for _, id := range t.InputIDs {
		if _, ok := l.known[id]; !ok {
			return "", eris.Wrapf(ErrUnknownInput, "audit: %s references %s", t.Kind, id)
		}
	}

	l.seq++
	t.Seq = l.seq
	t.TransformID = fmt.Sprintf("%s-T%04d", shortID(l.run.RunID), l.seq)
	t.PipelineRunID = l.run.RunID
	t.Timestamp = time.Now().UTC()
	l.transforms = append(l.transforms, t)
	l.known[t.TransformID] = struct{}{}
	return t.TransformID, nil
}

// FinishRun marks the run terminal and persists the audit artifacts.
// A persistence failure is returned to the caller; the in-memory state
// still transitions to finished, so the run cannot be extended and
// retried into an inconsistent log.
func (l *Logger) FinishRun(ctx context.Context, success bool, outputTables []string, outputRowCount int, runErr error) error {
	l.mu.Lock()
	if l.finished {
		l.mu.Unlock()
		return eris.Wrap(ErrRunFinished, "audit: finish")
	}
	l.finished = true

	now := time.Now().UTC()
	l.run.FinishedAt = &now
	l.run.InputFileCount = len(l.files)
	l.run.OutputTables = outputTables
	l.run.OutputRowCount = outputRowCount
	if success {
		l.run.Status = model.RunStatusSuccess
	} else {
		l.run.Status = model.RunStatusFailed
	}
	if runErr != nil {
		l.run.Error = runErr.Error()
	}
	run := l.run
	files := l.files
	transforms := l.transforms
	l.mu.Unlock()

	if err := l.persister.ReplaceSourceFiles(ctx, run.RunID, files); err != nil {
		return eris.Wrap(err, "audit: persist source files")
	}
	if err := l.persister.ReplaceTransformations(ctx, run.RunID, transforms); err != nil {
		return eris.Wrap(err, "audit: persist transformations")
	}
	if err := l.persister.SaveRun(ctx, run); err != nil {
		return eris.Wrap(err, "audit: persist run record")
	}

	summary, err := json.MarshalIndent(l.Report(), "", "  ")
	if err != nil {
		return eris.Wrap(err, "audit: encode run summary")
	}
	if err := l.persister.SaveRunSummary(ctx, run.RunID, summary); err != nil {
		return eris.Wrap(err, "audit: persist run summary")
	}

	l.log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("source_files", len(files)),
		zap.Int("transformations", len(transforms)),
		zap.Int("output_rows", run.OutputRowCount))
	return nil
}

// Snapshot returns copies of the current run state for reporting.
func (l *Logger) Snapshot() (model.PipelineRun, []model.SourceFile, []model.Transformation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files := make([]model.SourceFile, len(l.files))
	copy(files, l.files)
	transforms := make([]model.Transformation, len(l.transforms))
	copy(transforms, l.transforms)
	return l.run, files, transforms
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
