package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_EmptyRows(t *testing.T) {
	n, err := CopyRows(context.TODO(), nil, "enrollment_fact", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"enrollment_fact"}, []string{"contract_id", "plan_id"}).WillReturnResult(3)

	rows := [][]any{{"H1", "001"}, {"H1", "002"}, {"H2", "001"}}
	n, err := CopyRows(context.Background(), mock, "enrollment_fact", []string{"contract_id", "plan_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"enrollment_fact"}, []string{"a"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyRows(context.Background(), mock, "enrollment_fact", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO enrollment_fact")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "enrollment_fact" WHERE year = \$1 AND month = \$2`).
		WithArgs(2024, 3).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectCopyFrom(pgx.Identifier{"enrollment_fact"}, []string{"contract_id"}).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := ReplacePartition(context.Background(), mock,
		"enrollment_fact", "year = $1 AND month = $2", []any{2024, 3},
		[]string{"contract_id"}, [][]any{{"H1"}, {"H2"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_EmptyRowsStillDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "enrollment_fact"`).
		WithArgs(2024, 3).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectCommit()

	n, err := ReplacePartition(context.Background(), mock,
		"enrollment_fact", "year = $1 AND month = $2", []any{2024, 3}, []string{"contract_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_DeleteFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "enrollment_fact"`).
		WithArgs(2024, 3).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplacePartition(context.Background(), mock,
		"enrollment_fact", "year = $1 AND month = $2", []any{2024, 3}, []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete partition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "parent_orgs",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "parent_orgs",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "parent_orgs",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_parent_orgs"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_parent_orgs"}, []string{"parent_org_id", "canonical_name"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "parent_orgs" \("parent_org_id", "canonical_name"\) SELECT "parent_org_id", "canonical_name" FROM "_tmp_upsert_parent_orgs" ON CONFLICT \("parent_org_id"\) DO UPDATE SET "canonical_name" = EXCLUDED\."canonical_name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "parent_orgs",
		Columns:      []string{"parent_org_id", "canonical_name"},
		ConflictKeys: []string{"parent_org_id"},
	}, [][]any{{"org-a", "Acme Holdings, Inc."}, {"org-b", "CVS Health Corporation"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"contract_id", "plan_id", "enrollment"})
	assert.Equal(t, `"contract_id", "plan_id", "enrollment"`, result)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"warehouse.enrollment_fact", `"warehouse"."enrollment_fact"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
