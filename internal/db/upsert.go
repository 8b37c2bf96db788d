package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig names the target table and column roles for BulkUpsert.
type UpsertConfig struct {
	// Table is the target, optionally schema-qualified.
	Table string
	// Columns lists every column present in the rows, in row order.
	Columns []string
	// ConflictKeys are the columns of the unique constraint the upsert
	// resolves against.
	ConflictKeys []string
	// UpdateCols are overwritten on conflict; nil means every non-key column.
	UpdateCols []string
}

// BulkUpsert writes rows through COPY into a transaction-scoped staging table,
// then folds them into the target with INSERT ... ON CONFLICT DO UPDATE. One
// round trip per batch instead of one per row; the whole batch commits
// atomically. Returns the rows affected by the final insert.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: bulk upsert: no columns")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: bulk upsert: no conflict keys")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		updateCols = nonKeyColumns(cfg.Columns, cfg.ConflictKeys)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: bulk upsert: begin")
	}
	defer tx.Rollback(ctx)

	staging := "_staging_" + strings.ReplaceAll(cfg.Table, ".", "_")

	// ON COMMIT DROP keeps the staging table invisible outside this tx.
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: stage %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: copy into %s stage", cfg.Table)
	}

	assignments := make([]string, len(updateCols))
	for i, col := range updateCols {
		quoted := pgx.Identifier{col}.Sanitize()
		assignments[i] = quoted + " = EXCLUDED." + quoted
	}

	colList := quoteAndJoin(cfg.Columns)
	mergeSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{staging}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(assignments, ", "),
	)
	tag, err := tx.Exec(ctx, mergeSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: merge into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: bulk upsert: commit")
	}
	return tag.RowsAffected(), nil
}

func nonKeyColumns(columns, keys []string) []string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var out []string
	for _, c := range columns {
		if !keySet[c] {
			out = append(out, c)
		}
	}
	return out
}

// sanitizeTable quotes a table name, splitting an optional schema qualifier.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
