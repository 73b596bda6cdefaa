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
	"fmt"
	"io"
	"iter"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/DataBridgeTech/dbqprep"
)

// ClickhouseTarget exposes a ClickHouse table as a validation target.
type ClickhouseTarget struct {
	cnn      driver.Conn
	database string
	table    string
	where    string
	logger   *slog.Logger

	mu      sync.Mutex
	columns []columnInfo
}

var _ WarehouseTarget = (*ClickhouseTarget)(nil)

func NewClickhouseTarget(cnn driver.Conn, dataset string, where string, logger *slog.Logger) (*ClickhouseTarget, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	database, table, err := splitDataset(dataset)
	if err != nil {
		return nil, err
	}

	return &ClickhouseTarget{
		cnn:      cnn,
		database: database,
		table:    table,
		where:    where,
		logger:   logger,
	}, nil
}

func quoteClickhouse(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "\\`") + "`"
}

func (t *ClickhouseTarget) relation() string {
	if t.database == "" {
		return quoteClickhouse(t.table)
	}
	return quoteClickhouse(t.database) + "." + quoteClickhouse(t.table)
}

func (t *ClickhouseTarget) buildQuery(op string, column string) (string, error) {
	col := quoteClickhouse(column)

	var selectExpression string
	switch op {
	case "row_count":
		selectExpression = "count()"
	case "null_count":
		selectExpression = fmt.Sprintf("countIf(isNull(%s))", col)
	case "distinct_count":
		selectExpression = fmt.Sprintf("uniqExact(%s)", col)
	case "numeric_stats":
		selectExpression = fmt.Sprintf("minOrNull(toFloat64(%[1]s)), maxOrNull(toFloat64(%[1]s)), avgOrNull(toFloat64(%[1]s)), stddevPopOrNull(toFloat64(%[1]s))", col)
	case "values":
		selectExpression = col
	default:
		return "", fmt.Errorf("unsupported target operation: %s", op)
	}

	return appendWhere(fmt.Sprintf("select %s from %s", selectExpression, t.relation()), t.where), nil
}

// valuesQuery selects one column ordered by all sortable columns. Parallel
// reads of a MergeTree table return rows in no fixed order otherwise.
func (t *ClickhouseTarget) valuesQuery(column string, cols []columnInfo) (string, error) {
	query, err := t.buildQuery("values", column)
	if err != nil {
		return "", err
	}
	return query + orderByClause(cols, quoteClickhouse), nil
}

func (t *ClickhouseTarget) Ping(ctx context.Context) error {
	if err := t.cnn.Ping(ctx); err != nil {
		return dbqprep.NewTargetAccessError("ping", "", err)
	}
	return nil
}

func (t *ClickhouseTarget) Close() error {
	return t.cnn.Close()
}

func (t *ClickhouseTarget) fetchColumns(ctx context.Context) ([]columnInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.columns != nil {
		return t.columns, nil
	}

	query := `
        SELECT name, type, position
        FROM system.columns
        WHERE database = if(? = '', currentDatabase(), ?) AND table = ?
        ORDER BY position`

	rows, err := t.cnn.Query(ctx, query, t.database, t.database, t.table)
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
		var name, colType string
		var position uint64
		if err := rows.Scan(&name, &colType, &position); err != nil {
			return nil, dbqprep.NewTargetAccessError("columns", "", fmt.Errorf("failed to scan column info: %w", err))
		}
		cols = append(cols, columnInfo{Name: name, Type: colType, Position: uint(position)})
	}
	if err := rows.Err(); err != nil {
		return nil, dbqprep.NewTargetAccessError("columns", "", err)
	}

	t.columns = cols
	return cols, nil
}

func (t *ClickhouseTarget) lookupColumn(ctx context.Context, column string) (columnInfo, error) {
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

func (t *ClickhouseTarget) Columns(ctx context.Context) ([]string, error) {
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

func (t *ClickhouseTarget) ColumnCount(ctx context.Context) (int, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return 0, err
	}
	return len(cols), nil
}

func (t *ClickhouseTarget) HasColumn(ctx context.Context, name string) (bool, error) {
	cols, err := t.fetchColumns(ctx)
	if err != nil {
		return false, err
	}
	_, ok := findColumn(cols, name)
	return ok, nil
}

func (t *ClickhouseTarget) DType(ctx context.Context, column string) (dbqprep.DType, error) {
	col, err := t.lookupColumn(ctx, column)
	if err != nil {
		return dbqprep.DTypeUnknown, err
	}
	return dtypeFromSQLType(col.Type), nil
}

func (t *ClickhouseTarget) RowCount(ctx context.Context) (int64, error) {
	return t.queryCount(ctx, "row_count", "")
}

func (t *ClickhouseTarget) NullCount(ctx context.Context, column string) (int64, error) {
	return t.queryCount(ctx, "null_count", column)
}

func (t *ClickhouseTarget) DistinctCount(ctx context.Context, column string) (int64, error) {
	return t.queryCount(ctx, "distinct_count", column)
}

func (t *ClickhouseTarget) queryCount(ctx context.Context, op string, column string) (int64, error) {
	query, err := t.buildQuery(op, column)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := t.cnn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, dbqprep.NewTargetAccessError(op, column, err)
	}
	return int64(count), nil
}

func (t *ClickhouseTarget) NumericStats(ctx context.Context, column string) (*dbqprep.NumericStats, error) {
	query, err := t.buildQuery("numeric_stats", column)
	if err != nil {
		return nil, err
	}

	var stats dbqprep.NumericStats
	if err := t.cnn.QueryRow(ctx, query).Scan(&stats.MinValue, &stats.MaxValue, &stats.AvgValue, &stats.StddevValue); err != nil {
		return nil, dbqprep.NewTargetAccessError("numeric_stats", column, err)
	}
	return &stats, nil
}

func (t *ClickhouseTarget) Values(ctx context.Context, column string) (iter.Seq2[any, error], error) {
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
		rows, err := t.cnn.Query(ctx, query)
		if err != nil {
			yield(nil, dbqprep.NewTargetAccessError("values", column, err))
			return
		}
		defer func() {
			if err := rows.Close(); err != nil {
				t.logger.Warn("failed to close rows", "error", err)
			}
		}()

		columnTypes := rows.ColumnTypes()
		if len(columnTypes) != 1 {
			yield(nil, dbqprep.NewTargetAccessError("values", column, fmt.Errorf("expected one result column, got %d", len(columnTypes))))
			return
		}
		scanType := columnTypes[0].ScanType()

		for rows.Next() {
			dest := reflect.New(scanType)
			if err := rows.Scan(dest.Interface()); err != nil {
				yield(nil, dbqprep.NewTargetAccessError("values", column, err))
				return
			}
			if !yield(normalizeValue(derefValue(dest.Elem()), dtype), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, dbqprep.NewTargetAccessError("values", column, err))
		}
	}, nil
}

// derefValue unwraps the pointers the driver uses for Nullable columns.
func derefValue(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
