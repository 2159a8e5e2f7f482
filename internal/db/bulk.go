package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRows bulk-inserts rows into a table using the COPY protocol, the
// fastest path for a monthly fact partition.
func CopyRows(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ReplacePartition transactionally deletes every row matching the
// partition condition and COPYs the replacement rows in. Partition
// replacement is idempotent: re-running a period rebuild converges on
// the same table state.
func ReplacePartition(ctx context.Context, pool Pool, table, condition string, conditionArgs []any, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: begin tx", table)
	}
	defer tx.Rollback(ctx)

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s", sanitizeTable(table), condition)
	if _, err := tx.Exec(ctx, deleteSQL, conditionArgs...); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: delete partition", table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace %s: COPY rows", table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: commit", table)
	}
	return n, nil
}

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// BulkUpsert performs a bulk upsert via a temp table and
// INSERT ... ON CONFLICT, used for the slowly-changing dimension
// tables where partial reloads must not drop rows.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx)

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)

	var setClauses []string
	for _, col := range updateCols {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", pgx.Identifier{col}.Sanitize(), pgx.Identifier{col}.Sanitize()))
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		conflictList,
		strings.Join(setClauses, ", "),
	)

	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func tableIdent(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// sanitizeTable handles schema-qualified table names.
func sanitizeTable(table string) string {
	return tableIdent(table).Sanitize()
}
