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

package table

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/DataBridgeTech/dbqprep"
)

// ctxCheckInterval is how many cells are yielded between context checks.
const ctxCheckInterval = 4096

// Table is an immutable, column-oriented in-memory dataset. Every operation
// that changes data returns a new Table.
type Table struct {
	names   []string
	columns [][]any
	dtypes  []dbqprep.DType
	index   map[string]int
	rows    int
}

var _ dbqprep.ValidationTarget = (*Table)(nil)
var _ dbqprep.ColumnLister = (*Table)(nil)

// New builds a table from column names and row-major records.
func New(names []string, records [][]any) (*Table, error) {
	columns := make([][]any, len(names))
	for i := range columns {
		columns[i] = make([]any, len(records))
	}
	for r, record := range records {
		if len(record) != len(names) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(record), len(names))
		}
		for c, v := range record {
			columns[c][r] = v
		}
	}
	return FromColumns(names, columns)
}

// FromColumns builds a table from column-major data. The slices are copied.
func FromColumns(names []string, columns [][]any) (*Table, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(names), len(columns))
	}

	t := &Table{
		names:   slices.Clone(names),
		columns: make([][]any, len(columns)),
		dtypes:  make([]dbqprep.DType, len(columns)),
		index:   make(map[string]int, len(names)),
	}
	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		t.index[name] = i
		if i == 0 {
			t.rows = len(columns[i])
		} else if len(columns[i]) != t.rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", name, len(columns[i]), t.rows)
		}
		t.columns[i] = slices.Clone(columns[i])
		t.dtypes[i] = inferColumnDType(t.columns[i])
	}
	return t, nil
}

func inferColumnDType(values []any) dbqprep.DType {
	dtype := dbqprep.DTypeUnknown
	for _, v := range values {
		if dbqprep.IsNull(v) {
			continue
		}
		vt := dbqprep.InferDType(v)
		switch {
		case dtype == dbqprep.DTypeUnknown:
			dtype = vt
		case dtype == vt:
		case (dtype == dbqprep.DTypeInt && vt == dbqprep.DTypeFloat) || (dtype == dbqprep.DTypeFloat && vt == dbqprep.DTypeInt):
			dtype = dbqprep.DTypeFloat
		default:
			return dbqprep.DTypeString
		}
	}
	return dtype
}

func (t *Table) NumRows() int {
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.names)
}

func (t *Table) ColumnNames() []string {
	return slices.Clone(t.names)
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(t.columns[i]), true
}

// ColumnDType returns the inferred type of the named column.
func (t *Table) ColumnDType(name string) (dbqprep.DType, bool) {
	i, ok := t.index[name]
	if !ok {
		return dbqprep.DTypeUnknown, false
	}
	return t.dtypes[i], true
}

// Row returns a copy of the values of row r in column order.
func (t *Table) Row(r int) []any {
	row := make([]any, len(t.columns))
	for c := range t.columns {
		row[c] = t.columns[c][r]
	}
	return row
}

// Rows iterates over row indices and row copies.
func (t *Table) Rows() iter.Seq2[int, []any] {
	return func(yield func(int, []any) bool) {
		for r := 0; r < t.rows; r++ {
			if !yield(r, t.Row(r)) {
				return
			}
		}
	}
}

// SelectRows returns a table with the given rows, in the given order.
func (t *Table) SelectRows(rows []int) *Table {
	columns := make([][]any, len(t.columns))
	for c, col := range t.columns {
		selected := make([]any, len(rows))
		for i, r := range rows {
			selected[i] = col[r]
		}
		columns[c] = selected
	}
	return t.derive(columns)
}

// FilterRows returns a table with the rows for which keep returns true.
func (t *Table) FilterRows(keep func(row int) bool) *Table {
	var rows []int
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.SelectRows(rows)
}

// WithColumn returns a table where the named column holds values.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, name)
	}
	if len(values) != t.rows {
		return nil, fmt.Errorf("column %q replacement has %d values, expected %d", name, len(values), t.rows)
	}
	columns := slices.Clone(t.columns)
	columns[i] = slices.Clone(values)
	return t.derive(columns), nil
}

func (t *Table) derive(columns [][]any) *Table {
	nt := &Table{
		names:   slices.Clone(t.names),
		columns: columns,
		dtypes:  make([]dbqprep.DType, len(columns)),
		index:   t.index,
	}
	if len(columns) > 0 {
		nt.rows = len(columns[0])
	}
	for i := range columns {
		nt.dtypes[i] = inferColumnDType(columns[i])
	}
	return nt
}

func (t *Table) column(name string) ([]any, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

// RowCount implements dbqprep.ValidationTarget.
func (t *Table) RowCount(_ context.Context) (int64, error) {
	return int64(t.rows), nil
}

func (t *Table) ColumnCount(_ context.Context) (int, error) {
	return len(t.names), nil
}

func (t *Table) Columns(_ context.Context) ([]string, error) {
	return t.ColumnNames(), nil
}

func (t *Table) HasColumn(_ context.Context, name string) (bool, error) {
	_, ok := t.index[name]
	return ok, nil
}

func (t *Table) Values(ctx context.Context, column string) (iter.Seq2[any, error], error) {
	values, err := t.column(column)
	if err != nil {
		return nil, err
	}

	return func(yield func(any, error) bool) {
		for i, v := range values {
			if i%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
			}
			if !yield(v, nil) {
				return
			}
		}
	}, nil
}

func (t *Table) NullCount(_ context.Context, column string) (int64, error) {
	values, err := t.column(column)
	if err != nil {
		return 0, err
	}
	var nulls int64
	for _, v := range values {
		if dbqprep.IsNull(v) {
			nulls++
		}
	}
	return nulls, nil
}

func (t *Table) DistinctCount(ctx context.Context, column string) (int64, error) {
	values, err := t.column(column)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for i, v := range values {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if !dbqprep.IsNull(v) {
			seen[dbqprep.ValueKey(v)] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (t *Table) DType(_ context.Context, column string) (dbqprep.DType, error) {
	dtype, ok := t.ColumnDType(column)
	if !ok {
		return dbqprep.DTypeUnknown, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, column)
	}
	return dtype, nil
}
