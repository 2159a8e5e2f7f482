// Package query is the audited serving layer: every SQL query against
// the warehouse is executed with a recorded audit entry naming who ran
// it, what it touched, and how it went, and any past query can be
// traced back through the lineage log to the raw files behind it.
package query

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plansight/enroll-cli/internal/model"
	"github.com/plansight/enroll-cli/internal/store"
)

// knownTables are the warehouse tables a query can touch; accessed
// tables are detected by name match against this list.
var knownTables = []string{
	"enrollment_fact",
	"entities",
	"parent_orgs",
	"pipeline_runs",
	"source_files",
	"transformations",
	"reconciliation",
	"dimension_checks",
	"query_audits",
	"run_summaries",
}

// AuditStore is the slice of the store the query engine needs.
type AuditStore interface {
	SaveQueryAudit(ctx context.Context, audit model.QueryAudit) error
	GetQueryAudit(ctx context.Context, auditID string) (*model.QueryAudit, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error)
	GetTransformations(ctx context.Context, runID string) ([]model.Transformation, error)
	GetSourceFiles(ctx context.Context, runID string) ([]model.SourceFile, error)
}

// Engine executes read queries against the serving database with a
// persistent audit trail.
type Engine struct {
	db    *sql.DB
	store AuditStore
	log   *zap.Logger
}

func NewEngine(db *sql.DB, auditStore AuditStore) *Engine {
	return &Engine{
		db:    db,
		store: auditStore,
		log:   zap.L().With(zap.String("component", "query")),
	}
}

// Result holds an executed query's rows plus its audit id.
type Result struct {
	AuditID  string
	Columns  []string
	Rows     [][]string
	RowCount int
}

// QueryWithAudit executes a read-only SQL statement and records an
// audit entry whether it succeeds or fails. The audit entry is written
// before the error is returned, so failed queries leave a trail too.
func (e *Engine) QueryWithAudit(ctx context.Context, sqlText, userID, queryContext string) (*Result, error) {
	trimmed := strings.TrimSpace(strings.ToLower(sqlText))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return nil, eris.New("query: only read statements are allowed")
	}

	hash := md5.Sum([]byte(sqlText))
	audit := model.QueryAudit{
		AuditID:        uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		UserID:         userID,
		Context:        queryContext,
		SQL:            sqlText,
		SQLHash:        hex.EncodeToString(hash[:]),
		TablesAccessed: extractTables(sqlText),
	}

	start := time.Now()
	result, execErr := e.execute(ctx, sqlText)
	audit.ExecutionMs = float64(time.Since(start).Microseconds()) / 1000.0

	if execErr != nil {
		audit.Status = "error"
		audit.Error = execErr.Error()
	} else {
		audit.Status = "success"
		audit.RowCount = result.RowCount
		audit.ColumnCount = len(result.Columns)
		audit.Columns = result.Columns
		result.AuditID = audit.AuditID
	}

	if err := e.store.SaveQueryAudit(ctx, audit); err != nil {
		return nil, eris.Wrap(err, "query: persist audit entry")
	}
	e.log.Debug("query audited",
		zap.String("audit_id", audit.AuditID),
		zap.String("user", userID),
		zap.Strings("tables", audit.TablesAccessed),
		zap.String("status", audit.Status))

	if execErr != nil {
		return nil, eris.Wrap(execErr, "query: execute")
	}
	return result, nil
}

func (e *Engine) execute(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		raw := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			}
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	return result, rows.Err()
}

// extractTables returns the known warehouse tables named in the SQL,
// in the fixed known-table order.
func extractTables(sqlText string) []string {
	lower := strings.ToLower(sqlText)
	var tables []string
	for _, t := range knownTables {
		if containsWord(lower, t) {
			tables = append(tables, t)
		}
	}
	return tables
}

// containsWord reports whether name appears in s bounded by
// non-identifier characters, so enrollment_fact does not match
// enrollment_fact_archive.
func containsWord(s, name string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], name)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isIdentChar(s[i-1])
		afterIdx := i + len(name)
		after := afterIdx >= len(s) || !isIdentChar(s[afterIdx])
		if before && after {
			return true
		}
		start = i + len(name)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
