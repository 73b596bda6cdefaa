// Copyright 2025 The DBQ Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/DataBridgeTech/dbqprep"
)

// sqlDialect captures the differences between the database/sql backed warehouses.
type sqlDialect struct {
	name          string
	quoteChar     string
	defaultSchema string
	// columnsQuery lists name, type and position of a table's columns.
	columnsQuery string
}

var (
	postgresqlDialect = sqlDialect{
		name:          "postgresql",
		quoteChar:     `"`,
		defaultSchema: "public",
		columnsQuery: `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
	}

	mysqlDialect = sqlDialect{
		name:      "mysql",
		quoteChar: "`",
		columnsQuery: `
		SELECT column_name, column_type, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
		ORDER BY ordinal_position`,
	}
)

func (d sqlDialect) quote(identifier string) string {
	return d.quoteChar + strings.ReplaceAll(identifier, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

// SQLTarget exposes a PostgreSQL or MySQL table as a validation target.
// Counts are computed by the database; values are streamed with a new query
// on every iteration.
type SQLTarget struct {
	db      *sql.DB
	dialect sqlDialect
	schema  string
	table   string
	where   string
	logger  *slog.Logger

	mu      sync.Mutex
	columns []columnInfo
}

var _ WarehouseTarget = (*SQLTarget)(nil)

func NewPostgresqlTarget(db *sql.DB, dataset string, where string, logger *slog.Logger) (*SQLTarget, error) {
	return newSQLTarget(db, postgresqlDialect, dataset, where, logger)
}

func NewMysqlTarget(db *sql.DB, dataset string, where string, logger *slog.Logger) (*SQLTarget, error) {
	return newSQLTarget(db, mysqlDialect, dataset, where, logger)
}

func newSQLTarget(db *sql.DB, dialect sqlDialect, dataset string, where string, logger *slog.Logger) (*SQLTarget, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	schema, table, err := splitDataset(dataset)
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = dialect.defaultSchema
	}

	return &SQLTarget{
		db:      db,
		dialect: dialect,
		schema:  schema,
		table:   table,
		where:   where,
		logger:  logger,
	}, nil
}

func (t *SQLTarget) relation() string {
	if t.schema == "" {
		return t.dialect.quote(t.table)
	}
	return t.dialect.quote(t.schema) + "." + t.dialect.quote(t.table)
}

// buildQuery renders the statement used for one target operation.
func (t *SQLTarget) buildQuery(op string, column string) (string, error) {
	col := t.dialect.quote(column)

	var selectExpression string
	switch op {
	case "row_count":
		selectExpression = "COUNT(*)"
	case "null_count":
		selectExpression = fmt.Sprintf("COUNT(*) - COUNT(%s)", col)
	case "distinct_count":
		selectExpression = fmt.Sprintf("COUNT(DISTINCT %s)", col)
	case "numeric_stats":
		selectExpression = fmt.Sprintf("MIN(%s), MAX(%s), AVG(%s), STDDEV_POP(%s)", col, col, col, col)
	case "values":
		selectExpression = col
	default:
		return "", fmt.Errorf("unsupported target operation: %s", op)
	}

	return appendWhere(fmt.Sprintf("SELECT %s FROM %s", selectExpression, t.relation()), t.where), nil
}

// valuesQuery selects one column ordered by all sortable columns of the table.
func (t *SQLTarget) valuesQuery(column string, cols []columnInfo) (string, error) {
	query, err := t.buildQuery("values", column)
	if err != nil {
		return "", err
	}
	return query + orderByClause(cols, t.dialect.quote), nil
}

func (t *SQLTarget) Ping(ctx context.Context) error {
	if err := t.db.PingContext(ctx); err != nil {
		return dbqprep.NewTargetAccessError("ping", "", err)
	}
	return nil
}

func (t *SQLTarget) Close() error {
	return t.db.Close()
}

func (t *SQLTarget) fetchColumns(ctx context.Context) ([]columnInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.columns != nil {
		return t.columns, nil
	}

	rows, err := t.db.QueryContext(ctx, t.dialect.columnsQuery, t.schema, t.table)
	if err != nil {
		return nil, dbqprep.NewTargetAccessError("columns", "", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			t.logger.Warn("failed to close rows", "error", err)
		}
	}()

	cols := []columnInfo{}
	for rows.Next() {
		var col columnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Position); err != nil {
			return nil, dbqprep.NewTargetAccessError("columns", "", fmt.Errorf("failed to scan column info: %w", err))
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, dbqprep.NewTargetAccessError("columns", "", err)
	}

	t.logger.Debug("fetched table columns", "dataset", t.schema+"."+t.table, "columns", len(cols))
	t.columns = cols
	return cols, nil
}

func (t *SQLTarget) Columns(ctx context.Context) ([]string, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names, nil
}

func (t *SQLTarget) ColumnCount(ctx context.Context) (int, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return 0, err
	}
	return len(cols), nil
}

func (t *SQLTarget) HasColumn(ctx context.Context, name string) (bool, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return false, err
	}
	_, ok := findColumn(cols, name)
	return ok, nil
}

func (t *SQLTarget) DType(ctx context.Context, column string) (dbqprep.DType, error) {
	col, err := t.lookupColumn(ctx, column)
	if err != nil {
		return dbqprep.DTypeUnknown, err
	}
	return dtypeFromSQLType(col.Type), nil
}

func (t *SQLTarget) lookupColumn(ctx context.Context, column string) (columnInfo, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return columnInfo{}, err
	}
	col, ok := findColumn(cols, column)
	if !ok {
		return columnInfo{}, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, column)
	}
	return col, nil
}

func (t *SQLTarget) RowCount(ctx context.Context) (int64, error) {
	return t.queryCount(ctx, "row_count", "")
}

func (t *SQLTarget) NullCount(ctx context.Context, column string) (int64, error) {
	return t.queryCount(ctx, "null_count", column)
}

func (t *SQLTarget) DistinctCount(ctx context.Context, column string) (int64, error) {
	return t.queryCount(ctx, "distinct_count", column)
}

func (t *SQLTarget) queryCount(ctx context.Context, op string, column string) (int64, error) {
	query, err := t.buildQuery(op, column)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := t.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, dbqprep.NewTargetAccessError(op, column, err)
	}
	return count, nil
}

func (t *SQLTarget) NumericStats(ctx context.Context, column string) (*dbqprep.NumericStats, error) {
	query, err := t.buildQuery("numeric_stats", column)
	if err != nil {
		return nil, err
	}

	var minValue, maxValue, avgValue, stddevValue sql.NullFloat64
	if err := t.db.QueryRowContext(ctx, query).Scan(&minValue, &maxValue, &avgValue, &stddevValue); err != nil {
		return nil, dbqprep.NewTargetAccessError("numeric_stats", column, err)
	}

	return &dbqprep.NumericStats{
		MinValue:    nullFloatPtr(minValue),
		MaxValue:    nullFloatPtr(maxValue),
		AvgValue:    nullFloatPtr(avgValue),
		StddevValue: nullFloatPtr(stddevValue),
	}, nil
}

func (t *SQLTarget) Values(ctx context.Context, column string) (iter.Seq2[any, error], error) {
	col, err := t.lookupColumn(ctx, column)
	if err != nil {
		return nil, err
	}
	dtype := dtypeFromSQLType(col.Type)

	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return nil, err
	}
	query, err := t.valuesQuery(column, cols)
	if err != nil {
		return nil, err
	}

	return func(yield func(any, error) bool) {
		rows, err := t.db.QueryContext(ctx, query)
		if err != nil {
			yield(nil, dbqprep.NewTargetAccessError("values", column, err))
			return
		}
		defer func() {
			if err := rows.Close(); err != nil {
				t.logger.Warn("failed to close rows", "error", err)
			}
		}()

		for rows.Next() {
			var v any
			if err := rows.Scan(&v); err != nil {
				yield(nil, dbqprep.NewTargetAccessError("values", column, err))
				return
			}
			if !yield(normalizeValue(v, dtype), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, dbqprep.NewTargetAccessError("values", column, err))
		}
	}, nil
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
