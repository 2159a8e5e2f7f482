package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/plansight/enroll-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for the audited query layer.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id           TEXT PRIMARY KEY,
	pipeline_name    TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME,
	payload          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_files (
	file_id   TEXT PRIMARY KEY,
	run_id    TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	uri       TEXT NOT NULL,
	file_type TEXT NOT NULL,
	year      INTEGER NOT NULL,
	month     INTEGER,
	payload   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transformations (
	transform_id TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	seq          INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	output_table TEXT NOT NULL,
	payload      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_summaries (
	run_id  TEXT PRIMARY KEY REFERENCES pipeline_runs(run_id),
	summary TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id           TEXT PRIMARY KEY,
	current_contract_id TEXT NOT NULL,
	current_plan_id     TEXT NOT NULL,
	first_year          INTEGER NOT NULL,
	last_year           INTEGER NOT NULL,
	payload             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS parent_orgs (
	parent_org_id  TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	payload        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollment_fact (
	contract_id           TEXT NOT NULL,
	plan_id               TEXT NOT NULL,
	year                  INTEGER NOT NULL,
	month                 INTEGER NOT NULL,
	parent_org            TEXT,
	plan_type             TEXT,
	plan_type_simple      TEXT,
	product_type          TEXT,
	group_type            TEXT,
	group_type_source     TEXT,
	group_type_confidence REAL,
	snp_type              TEXT,
	snp_type_source       TEXT,
	enrollment            INTEGER NOT NULL DEFAULT 0,
	enrollment_source     TEXT,
	PRIMARY KEY (contract_id, plan_id, year, month)
);

CREATE TABLE IF NOT EXISTS reconciliation (
	run_id                          TEXT NOT NULL,
	year                            INTEGER NOT NULL,
	month                           INTEGER NOT NULL,
	primary_total                   INTEGER NOT NULL,
	secondary_total                 INTEGER NOT NULL,
	discrepancy                     INTEGER NOT NULL,
	discrepancy_pct                 REAL NOT NULL,
	suppressed_record_count         INTEGER NOT NULL,
	estimated_suppressed_enrollment REAL NOT NULL,
	unexplained_discrepancy         REAL NOT NULL,
	flagged                         INTEGER NOT NULL,
	PRIMARY KEY (run_id, year, month)
);

CREATE TABLE IF NOT EXISTS dimension_checks (
	run_id    TEXT NOT NULL,
	year      INTEGER NOT NULL,
	month     INTEGER NOT NULL,
	dimension TEXT NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (run_id, year, month, dimension)
);

CREATE TABLE IF NOT EXISTS query_audits (
	audit_id TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	ts       DATETIME NOT NULL,
	payload  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_source_files_run ON source_files(run_id);
CREATE INDEX IF NOT EXISTS idx_transformations_run ON transformations(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_fact_period ON enrollment_fact(year, month);
CREATE INDEX IF NOT EXISTS idx_fact_parent_org ON enrollment_fact(parent_org);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.PipelineRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, pipeline_name, status, started_at, finished_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			payload = excluded.payload`,
		run.RunID, run.PipelineName, string(run.Status), run.StartedAt, run.FinishedAt, string(payload),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM pipeline_runs WHERE run_id = ?`, runID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	var run model.PipelineRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal run %s", runID)
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT payload FROM pipeline_runs`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Pipeline != "" {
		conds = append(conds, "pipeline_name = ?")
		args = append(args, filter.Pipeline)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var run model.PipelineRun
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) ReplaceSourceFiles(ctx context.Context, runID string, files []model.SourceFile) error {
	return s.inTx(ctx, "replace source files", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_files WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, f := range files {
			payload, err := json.Marshal(f)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO source_files (file_id, run_id, uri, file_type, year, month, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				f.FileID, runID, f.URI, f.FileType, f.Year, f.Month, string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetSourceFiles(ctx context.Context, runID string) ([]model.SourceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM source_files WHERE run_id = ? ORDER BY file_id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source files %s", runID)
	}
	defer rows.Close()

	var files []model.SourceFile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source file")
		}
		var f model.SourceFile
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source file")
		}
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: get source files")
}

func (s *SQLiteStore) ReplaceTransformations(ctx context.Context, runID string, transforms []model.Transformation) error {
	return s.inTx(ctx, "replace transformations", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transformations WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, t := range transforms {
			payload, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transformations (transform_id, run_id, seq, kind, output_table, payload)
				VALUES (?, ?, ?, ?, ?, ?)`,
				t.TransformID, runID, t.Seq, string(t.Kind), t.OutputTable, string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetTransformations(ctx context.Context, runID string) ([]model.Transformation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM transformations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get transformations %s", runID)
	}
	defer rows.Close()

	var transforms []model.Transformation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transformation")
		}
		var t model.Transformation
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal transformation")
		}
		transforms = append(transforms, t)
	}
	return transforms, eris.Wrap(rows.Err(), "sqlite: get transformations")
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, runID string, summary []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_summaries (run_id, summary) VALUES (?, ?)
		ON CONFLICT (run_id) DO UPDATE SET summary = excluded.summary`,
		runID, string(summary),
	)
	return eris.Wrapf(err, "sqlite: save run summary %s", runID)
}

func (s *SQLiteStore) GetRunSummary(ctx context.Context, runID string) ([]byte, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM run_summaries WHERE run_id = ?`, runID,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run summary %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run summary %s", runID)
	}
	return []byte(summary), nil
}

func (s *SQLiteStore) ReplaceEntities(ctx context.Context, entities []model.Entity) error {
	return s.inTx(ctx, "replace entities", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
			return err
		}
		for _, e := range entities {
			payload, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (entity_id, current_contract_id, current_plan_id, first_year, last_year, payload)
				VALUES (?, ?, ?, ?, ?, ?)`,
				e.EntityID, e.CurrentContractID, e.CurrentPlanID, e.FirstYear, e.LastYear, string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM entities WHERE entity_id = ?`, entityID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: entity %s", entityID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", entityID)
	}
	var e model.Entity
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal entity %s", entityID)
	}
	return &e, nil
}

func (s *SQLiteStore) ReplaceParentOrgs(ctx context.Context, orgs []model.ParentOrgIdentity) error {
	return s.inTx(ctx, "replace parent orgs", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM parent_orgs`); err != nil {
			return err
		}
		for _, o := range orgs {
			payload, err := json.Marshal(o)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO parent_orgs (parent_org_id, canonical_name, payload)
				VALUES (?, ?, ?)`,
				o.ParentOrgID, o.CanonicalName, string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListParentOrgs(ctx context.Context) ([]model.ParentOrgIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM parent_orgs ORDER BY canonical_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parent orgs")
	}
	defer rows.Close()

	var orgs []model.ParentOrgIdentity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parent org")
		}
		var o model.ParentOrgIdentity
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parent org")
		}
		orgs = append(orgs, o)
	}
	return orgs, eris.Wrap(rows.Err(), "sqlite: list parent orgs")
}

func (s *SQLiteStore) ReplaceFactPartition(ctx context.Context, year, month int, facts []model.EnrollmentFact) (int64, error) {
	var n int64
	err := s.inTx(ctx, "replace fact partition", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM enrollment_fact WHERE year = ? AND month = ?`, year, month); err != nil {
			return err
		}
		insert := fmt.Sprintf(
			`INSERT INTO enrollment_fact (%s) VALUES (%s)`,
			strings.Join(factColumns, ", "),
			strings.TrimSuffix(strings.Repeat("?, ", len(factColumns)), ", "),
		)
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range facts {
			if _, err := stmt.ExecContext(ctx, factRow(f)...); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) FactPartition(ctx context.Context, year, month int) ([]model.EnrollmentFact, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM enrollment_fact WHERE year = ? AND month = ? ORDER BY contract_id, plan_id`,
		strings.Join(factColumns, ", "),
	)
	rows, err := s.db.QueryContext(ctx, query, year, month)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fact partition %d-%02d", year, month)
	}
	defer rows.Close()

	var facts []model.EnrollmentFact
	for rows.Next() {
		var f model.EnrollmentFact
		if err := rows.Scan(
			&f.ContractID, &f.PlanID, &f.Year, &f.Month,
			&f.ParentOrg, &f.PlanType, &f.PlanTypeSimple, &f.ProductType,
			&f.GroupType, &f.GroupTypeSource, &f.GroupTypeConfidence,
			&f.SNPType, &f.SNPTypeSource,
			&f.Enrollment, &f.EnrollmentSource,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: fact partition")
}

func (s *SQLiteStore) ReplaceReconciliation(ctx context.Context, runID string, records []model.ReconciliationRecord, checks []model.DimensionCheck) error {
	return s.inTx(ctx, "replace reconciliation", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reconciliation WHERE run_id = ?`, runID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dimension_checks WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reconciliation (run_id, year, month, primary_total, secondary_total,
					discrepancy, discrepancy_pct, suppressed_record_count,
					estimated_suppressed_enrollment, unexplained_discrepancy, flagged)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, r.Year, r.Month, r.PrimaryTotal, r.SecondaryTotal,
				r.Discrepancy, r.DiscrepancyPct, r.SuppressedRecordCount,
				r.EstimatedSuppressedEnrollees, r.UnexplainedDiscrepancy, r.Flagged,
			); err != nil {
				return err
			}
		}
		for _, c := range checks {
			payload, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO dimension_checks (run_id, year, month, dimension, payload)
				VALUES (?, ?, ?, ?, ?)`,
				runID, c.Year, c.Month, c.Dimension, string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SaveQueryAudit(ctx context.Context, audit model.QueryAudit) error {
	payload, err := json.Marshal(audit)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal query audit")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_audits (audit_id, user_id, ts, payload) VALUES (?, ?, ?, ?)`,
		audit.AuditID, audit.UserID, audit.Timestamp, string(payload),
	)
	return eris.Wrapf(err, "sqlite: save query audit %s", audit.AuditID)
}

func (s *SQLiteStore) GetQueryAudit(ctx context.Context, auditID string) (*model.QueryAudit, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM query_audits WHERE audit_id = ?`, auditID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: query audit %s", auditID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get query audit %s", auditID)
	}
	var audit model.QueryAudit
	if err := json.Unmarshal([]byte(payload), &audit); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal query audit %s", auditID)
	}
	return &audit, nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin tx", op)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return eris.Wrapf(err, "sqlite: %s", op)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", op)
}
