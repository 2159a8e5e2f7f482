package model

import "time"

// QueryAudit records one audited SQL query against the serving layer.
type QueryAudit struct {
	AuditID        string    `json:"audit_id"`
	Timestamp      time.Time `json:"timestamp"`
	UserID         string    `json:"user_id"`
	Context        string    `json:"context,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	SQL            string    `json:"sql"`
	SQLHash        string    `json:"sql_hash"`
	TablesAccessed []string  `json:"tables_accessed"`
	RowCount       int       `json:"row_count"`
	ColumnCount    int       `json:"column_count"`
	Columns        []string  `json:"columns,omitempty"`
	ExecutionMs    float64   `json:"execution_time_ms"`
	Status         string    `json:"status"` // success or error
	Error          string    `json:"error,omitempty"`
}
