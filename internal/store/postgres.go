package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/plansight/enroll-cli/internal/db"
	"github.com/plansight/enroll-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id        TEXT PRIMARY KEY,
	pipeline_name TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	payload       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS source_files (
	file_id   TEXT PRIMARY KEY,
	run_id    TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	uri       TEXT NOT NULL,
	file_type TEXT NOT NULL,
	year      INT NOT NULL,
	month     INT,
	payload   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS transformations (
	transform_id TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	seq          BIGINT NOT NULL,
	kind         TEXT NOT NULL,
	output_table TEXT NOT NULL,
	payload      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS run_summaries (
	run_id  TEXT PRIMARY KEY REFERENCES pipeline_runs(run_id),
	summary JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id           TEXT PRIMARY KEY,
	current_contract_id TEXT NOT NULL,
	current_plan_id     TEXT NOT NULL,
	first_year          INT NOT NULL,
	last_year           INT NOT NULL,
	payload             JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS parent_orgs (
	parent_org_id  TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	payload        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollment_fact (
	contract_id           TEXT NOT NULL,
	plan_id               TEXT NOT NULL,
	year                  INT NOT NULL,
	month                 INT NOT NULL,
	parent_org            TEXT,
	plan_type             TEXT,
	plan_type_simple      TEXT,
	product_type          TEXT,
	group_type            TEXT,
	group_type_source     TEXT,
	group_type_confidence DOUBLE PRECISION,
	snp_type              TEXT,
	snp_type_source       TEXT,
	enrollment            BIGINT NOT NULL DEFAULT 0,
	enrollment_source     TEXT,
	PRIMARY KEY (contract_id, plan_id, year, month)
);

CREATE TABLE IF NOT EXISTS reconciliation (
	run_id                          TEXT NOT NULL,
	year                            INT NOT NULL,
	month                           INT NOT NULL,
	primary_total                   BIGINT NOT NULL,
	secondary_total                 BIGINT NOT NULL,
	discrepancy                     BIGINT NOT NULL,
	discrepancy_pct                 DOUBLE PRECISION NOT NULL,
	suppressed_record_count         INT NOT NULL,
	estimated_suppressed_enrollment DOUBLE PRECISION NOT NULL,
	unexplained_discrepancy         DOUBLE PRECISION NOT NULL,
	flagged                         BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, year, month)
);

CREATE TABLE IF NOT EXISTS dimension_checks (
	run_id    TEXT NOT NULL,
	year      INT NOT NULL,
	month     INT NOT NULL,
	dimension TEXT NOT NULL,
	payload   JSONB NOT NULL,
	PRIMARY KEY (run_id, year, month, dimension)
);

CREATE TABLE IF NOT EXISTS query_audits (
	audit_id TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	ts       TIMESTAMPTZ NOT NULL,
	payload  JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_source_files_run ON source_files(run_id);
CREATE INDEX IF NOT EXISTS idx_transformations_run ON transformations(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_fact_period ON enrollment_fact(year, month);
CREATE INDEX IF NOT EXISTS idx_fact_parent_org ON enrollment_fact(parent_org);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.PipelineRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, pipeline_name, status, started_at, finished_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			payload = EXCLUDED.payload`,
		run.RunID, run.PipelineName, string(run.Status), run.StartedAt, run.FinishedAt, payload,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.RunID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM pipeline_runs WHERE run_id = $1`, runID,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	var run model.PipelineRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal run %s", runID)
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT payload FROM pipeline_runs`
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Pipeline != "" {
		args = append(args, filter.Pipeline)
		conds = append(conds, fmt.Sprintf("pipeline_name = $%d", len(args)))
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var run model.PipelineRun
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) ReplaceSourceFiles(ctx context.Context, runID string, files []model.SourceFile) error {
	rows := make([][]any, 0, len(files))
	for _, f := range files {
		payload, err := json.Marshal(f)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source file")
		}
		rows = append(rows, []any{f.FileID, runID, f.URI, f.FileType, f.Year, f.Month, payload})
	}
	_, err := db.ReplacePartition(ctx, s.pool, "source_files",
		"run_id = $1", []any{runID},
		[]string{"file_id", "run_id", "uri", "file_type", "year", "month", "payload"}, rows)
	return err
}

func (s *PostgresStore) GetSourceFiles(ctx context.Context, runID string) ([]model.SourceFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM source_files WHERE run_id = $1 ORDER BY file_id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source files %s", runID)
	}
	defer rows.Close()

	var files []model.SourceFile
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source file")
		}
		var f model.SourceFile
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source file")
		}
		files = append(files, f)
	}
	return files, eris.Wrap(rows.Err(), "postgres: get source files")
}

func (s *PostgresStore) ReplaceTransformations(ctx context.Context, runID string, transforms []model.Transformation) error {
	rows := make([][]any, 0, len(transforms))
	for _, t := range transforms {
		payload, err := json.Marshal(t)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal transformation")
		}
		rows = append(rows, []any{t.TransformID, runID, t.Seq, string(t.Kind), t.OutputTable, payload})
	}
	_, err := db.ReplacePartition(ctx, s.pool, "transformations",
		"run_id = $1", []any{runID},
		[]string{"transform_id", "run_id", "seq", "kind", "output_table", "payload"}, rows)
	return err
}

func (s *PostgresStore) GetTransformations(ctx context.Context, runID string) ([]model.Transformation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM transformations WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get transformations %s", runID)
	}
	defer rows.Close()

	var transforms []model.Transformation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transformation")
		}
		var t model.Transformation
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal transformation")
		}
		transforms = append(transforms, t)
	}
	return transforms, eris.Wrap(rows.Err(), "postgres: get transformations")
}

func (s *PostgresStore) SaveRunSummary(ctx context.Context, runID string, summary []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_summaries (run_id, summary) VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET summary = EXCLUDED.summary`,
		runID, summary,
	)
	return eris.Wrapf(err, "postgres: save run summary %s", runID)
}

func (s *PostgresStore) GetRunSummary(ctx context.Context, runID string) ([]byte, error) {
	var summary []byte
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM run_summaries WHERE run_id = $1`, runID,
	).Scan(&summary)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run summary %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run summary %s", runID)
	}
	return summary, nil
}

func (s *PostgresStore) ReplaceEntities(ctx context.Context, entities []model.Entity) error {
	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		payload, err := json.Marshal(e)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal entity")
		}
		rows = append(rows, []any{e.EntityID, e.CurrentContractID, e.CurrentPlanID, e.FirstYear, e.LastYear, payload})
	}
	// Entity chains are rebuilt wholesale every run; identities that
	// disappear from the latest build must not linger.
	_, err := db.ReplacePartition(ctx, s.pool, "entities", "TRUE", nil,
		[]string{"entity_id", "current_contract_id", "current_plan_id", "first_year", "last_year", "payload"}, rows)
	return err
}

func (s *PostgresStore) GetEntity(ctx context.Context, entityID string) (*model.Entity, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM entities WHERE entity_id = $1`, entityID,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: entity %s", entityID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", entityID)
	}
	var e model.Entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal entity %s", entityID)
	}
	return &e, nil
}

func (s *PostgresStore) ReplaceParentOrgs(ctx context.Context, orgs []model.ParentOrgIdentity) error {
	rows := make([][]any, 0, len(orgs))
	for _, o := range orgs {
		payload, err := json.Marshal(o)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal parent org")
		}
		rows = append(rows, []any{o.ParentOrgID, o.CanonicalName, payload})
	}
	_, err := db.ReplacePartition(ctx, s.pool, "parent_orgs", "TRUE", nil,
		[]string{"parent_org_id", "canonical_name", "payload"}, rows)
	return err
}

func (s *PostgresStore) ListParentOrgs(ctx context.Context) ([]model.ParentOrgIdentity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM parent_orgs ORDER BY canonical_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parent orgs")
	}
	defer rows.Close()

	var orgs []model.ParentOrgIdentity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parent org")
		}
		var o model.ParentOrgIdentity
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parent org")
		}
		orgs = append(orgs, o)
	}
	return orgs, eris.Wrap(rows.Err(), "postgres: list parent orgs")
}

func (s *PostgresStore) ReplaceFactPartition(ctx context.Context, year, month int, facts []model.EnrollmentFact) (int64, error) {
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, factRow(f))
	}
	return db.ReplacePartition(ctx, s.pool, "enrollment_fact",
		"year = $1 AND month = $2", []any{year, month}, factColumns, rows)
}

func (s *PostgresStore) FactPartition(ctx context.Context, year, month int) ([]model.EnrollmentFact, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM enrollment_fact WHERE year = $1 AND month = $2 ORDER BY contract_id, plan_id`,
		strings.Join(factColumns, ", "),
	)
	rows, err := s.pool.Query(ctx, query, year, month)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: fact partition %d-%02d", year, month)
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
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: fact partition")
}

func (s *PostgresStore) ReplaceReconciliation(ctx context.Context, runID string, records []model.ReconciliationRecord, checks []model.DimensionCheck) error {
	recRows := make([][]any, 0, len(records))
	for _, r := range records {
		recRows = append(recRows, []any{
			runID, r.Year, r.Month, r.PrimaryTotal, r.SecondaryTotal,
			r.Discrepancy, r.DiscrepancyPct, r.SuppressedRecordCount,
			r.EstimatedSuppressedEnrollees, r.UnexplainedDiscrepancy, r.Flagged,
		})
	}
	if _, err := db.ReplacePartition(ctx, s.pool, "reconciliation",
		"run_id = $1", []any{runID},
		[]string{"run_id", "year", "month", "primary_total", "secondary_total",
			"discrepancy", "discrepancy_pct", "suppressed_record_count",
			"estimated_suppressed_enrollment", "unexplained_discrepancy", "flagged"},
		recRows); err != nil {
		return err
	}

	checkRows := make([][]any, 0, len(checks))
	for _, c := range checks {
		payload, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal dimension check")
		}
		checkRows = append(checkRows, []any{runID, c.Year, c.Month, c.Dimension, payload})
	}
	_, err := db.ReplacePartition(ctx, s.pool, "dimension_checks",
		"run_id = $1", []any{runID},
		[]string{"run_id", "year", "month", "dimension", "payload"}, checkRows)
	return err
}

func (s *PostgresStore) SaveQueryAudit(ctx context.Context, audit model.QueryAudit) error {
	payload, err := json.Marshal(audit)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal query audit")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO query_audits (audit_id, user_id, ts, payload) VALUES ($1, $2, $3, $4)`,
		audit.AuditID, audit.UserID, audit.Timestamp, payload,
	)
	return eris.Wrapf(err, "postgres: save query audit %s", audit.AuditID)
}

func (s *PostgresStore) GetQueryAudit(ctx context.Context, auditID string) (*model.QueryAudit, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM query_audits WHERE audit_id = $1`, auditID,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: query audit %s", auditID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get query audit %s", auditID)
	}
	var audit model.QueryAudit
	if err := json.Unmarshal(payload, &audit); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal query audit %s", auditID)
	}
	return &audit, nil
}
