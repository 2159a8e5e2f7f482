package model

import "time"

// SourceFile is a registry entry for one raw input file. Immutable once
// registered with the audit logger.
type SourceFile struct {
	FileID        string    `json:"file_id"`
	URI           string    `json:"uri"`
	FileType      string    `json:"file_type"` // crosswalk, enrollment_plan, contract_info, snp_report, service_area
	Year          int       `json:"year"`
	Month         *int      `json:"month,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	ContentHash   string    `json:"content_hash"`
	RowCount      int       `json:"row_count,omitempty"`
	ColumnNames   []string  `json:"column_names,omitempty"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastProcessed time.Time `json:"last_processed_at"`
}

// TransformKind classifies a recorded transformation.
type TransformKind string

const (
	TransformLoad        TransformKind = "load"
	TransformJoin        TransformKind = "join"
	TransformDerive      TransformKind = "derive"
	TransformAggregate   TransformKind = "aggregate"
	TransformFilter      TransformKind = "filter"
	TransformUnion       TransformKind = "union"
	TransformDeduplicate TransformKind = "deduplicate"
)

// Transformation is one append-only entry in a run's transformation log.
// Inputs reference SourceFile or earlier Transformation ids from the same
// run, so the log forms a DAG rooted at source files.
type Transformation struct {
	TransformID    string        `json:"transform_id"`
	PipelineRunID  string        `json:"pipeline_run_id"`
	Seq            int64         `json:"seq"`
	Kind           TransformKind `json:"kind"`
	Description    string        `json:"description"`
	InputIDs       []string      `json:"input_ids"`
	OutputTable    string        `json:"output_table"`
	OutputRowCount int           `json:"output_row_count"`

	// Join params.
	JoinKeys []string `json:"join_keys,omitempty"`
	JoinType string   `json:"join_type,omitempty"`

	// Derive params.
	DerivedField    string `json:"derived_field,omitempty"`
	DerivationLogic string `json:"derivation_logic,omitempty"`

	// Aggregate params.
	GroupByFields []string          `json:"group_by_fields,omitempty"`
	AggFunctions  map[string]string `json:"agg_functions,omitempty"`

	// Filter params.
	FilterCondition string `json:"filter_condition,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// PipelineRun records one pipeline invocation. It owns every SourceFile
// registration and Transformation logged during that invocation.
type PipelineRun struct {
	RunID          string     `json:"run_id"`
	PipelineName   string     `json:"pipeline_name"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         RunStatus  `json:"status"`
	InputFileCount int        `json:"input_file_count"`
	OutputTables   []string   `json:"output_tables,omitempty"`
	OutputRowCount int        `json:"output_row_count"`
	Error          string     `json:"error,omitempty"`
}

// LineageNode is one node of the projected lineage graph.
type LineageNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"` // source or transform
	Label string `json:"label"`
}

// LineageEdge joins a transformation input to its consumer.
type LineageEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LineageReport is the node/edge projection of one run's audit log.
type LineageReport struct {
	RunID           string           `json:"run_id"`
	PipelineName    string           `json:"pipeline_name"`
	SourceFiles     []SourceFile     `json:"source_files"`
	Transformations []Transformation `json:"transformations"`
	Nodes           []LineageNode    `json:"nodes"`
	Edges           []LineageEdge    `json:"edges"`
}

// RecordLineage resolves one output record back to its inputs.
type RecordLineage struct {
	OutputTable     string           `json:"output_table"`
	RecordKey       map[string]any   `json:"record_key"`
	SourceFiles     []SourceFile     `json:"source_files"`
	Transformations []Transformation `json:"transformations"`
}
