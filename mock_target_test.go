package dbqprep

import (
	"context"
	"iter"
	"sync/atomic"
)

type mockColumn struct {
	name   string
	values []any
	dtype  DType
}

// mockTarget is an in-memory ValidationTarget with hooks for failure injection.
type mockTarget struct {
	names   []string
	columns map[string]mockColumn
	rows    int64

	accessErr   error  // returned, wrapped, by every accessor
	blockColumn string // Values on this column blocks until ctx is done
	panicColumn string // Values on this column panics

	valuesCalls atomic.Int32
}

func newMockTarget(cols []mockColumn) *mockTarget {
	m := &mockTarget{columns: make(map[string]mockColumn, len(cols))}
	for i, col := range cols {
		if col.dtype == "" {
			col.dtype = inferMockDType(col.values)
		}
		m.names = append(m.names, col.name)
		m.columns[col.name] = col
		if i == 0 {
			m.rows = int64(len(col.values))
		}
	}
	return m
}

func inferMockDType(values []any) DType {
	for _, v := range values {
		if !IsNull(v) {
			return InferDType(v)
		}
	}
	return DTypeUnknown
}

func (m *mockTarget) fail(op, column string) error {
	if m.accessErr != nil {
		return NewTargetAccessError(op, column, m.accessErr)
	}
	return nil
}

func (m *mockTarget) column(ctx context.Context, op, name string) (mockColumn, error) {
	if err := ctx.Err(); err != nil {
		return mockColumn{}, err
	}
	if err := m.fail(op, name); err != nil {
		return mockColumn{}, err
	}
	col, ok := m.columns[name]
	if !ok {
		return mockColumn{}, ErrColumnNotFound
	}
	return col, nil
}

func (m *mockTarget) RowCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.rows, m.fail("row_count", "")
}

func (m *mockTarget) ColumnCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(m.names), m.fail("column_count", "")
}

func (m *mockTarget) HasColumn(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := m.fail("has_column", name); err != nil {
		return false, err
	}
	_, ok := m.columns[name]
	return ok, nil
}

func (m *mockTarget) Values(ctx context.Context, column string) (iter.Seq2[any, error], error) {
	col, err := m.column(ctx, "values", column)
	if err != nil {
		return nil, err
	}
	m.valuesCalls.Add(1)
	if column == m.panicColumn {
		panic("values exploded")
	}

	return func(yield func(any, error) bool) {
		if column == m.blockColumn {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		for _, v := range col.values {
			if !yield(v, nil) {
				return
			}
		}
	}, nil
}

func (m *mockTarget) NullCount(ctx context.Context, column string) (int64, error) {
	col, err := m.column(ctx, "null_count", column)
	if err != nil {
		return 0, err
	}
	var nulls int64
	for _, v := range col.values {
		if IsNull(v) {
			nulls++
		}
	}
	return nulls, nil
}

func (m *mockTarget) DistinctCount(ctx context.Context, column string) (int64, error) {
	col, err := m.column(ctx, "distinct_count", column)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, v := range col.values {
		if !IsNull(v) {
			seen[ValueKey(v)] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (m *mockTarget) DType(ctx context.Context, column string) (DType, error) {
	col, err := m.column(ctx, "dtype", column)
	if err != nil {
		return DTypeUnknown, err
	}
	return col.dtype, nil
}

// filledColumns returns n two-row columns named col_a, col_b and so on.
func filledColumns(n int) []mockColumn {
	cols := make([]mockColumn, n)
	for i := range cols {
		cols[i] = mockColumn{name: "col_" + string(rune('a'+i)), values: []any{int64(i), int64(i + 1)}}
	}
	return cols
}
