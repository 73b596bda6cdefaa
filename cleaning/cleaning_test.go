package cleaning

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/table"
)

func newTable(t *testing.T, names []string, records ...[]any) *table.Table {
	t.Helper()
	tbl, err := table.New(names, records)
	require.NoError(t, err)
	return tbl
}

func column(t *testing.T, tbl *table.Table, name string) []any {
	t.Helper()
	values, ok := tbl.Column(name)
	require.True(t, ok)
	return values
}

func TestNullValueHandler(t *testing.T) {
	source := newTable(t, []string{"id", "charges"},
		[]any{int64(1), nil},
		[]any{int64(2), 20.5},
		[]any{nil, nil},
		[]any{int64(4), 40.0},
		[]any{int64(5), nil},
	)

	tests := []struct {
		name     string
		handler  NullValueHandler
		expected []any
		rows     int
	}{
		{
			name:     "drop",
			handler:  NullValueHandler{Strategy: NullDrop},
			expected: []any{20.5, 40.0},
			rows:     2,
		},
		{
			name:     "fill",
			handler:  NullValueHandler{Strategy: NullFill, FillValue: 0.0},
			expected: []any{0.0, 20.5, 0.0, 40.0, 0.0},
			rows:     5,
		},
		{
			name:     "forward fill keeps leading null",
			handler:  NullValueHandler{Strategy: NullForwardFill},
			expected: []any{nil, 20.5, 20.5, 40.0, 40.0},
			rows:     5,
		},
		{
			name:     "backward fill keeps trailing null",
			handler:  NullValueHandler{Strategy: NullBackwardFill},
			expected: []any{20.5, 20.5, 40.0, 40.0, nil},
			rows:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler.Process(context.Background(), source)
			require.NoError(t, err)
			assert.Equal(t, tt.rows, result.NumRows())
			assert.Equal(t, tt.expected, column(t, result, "charges"))
		})
	}

	assert.Equal(t, 5, source.NumRows())
	assert.Equal(t, []any{nil, 20.5, nil, 40.0, nil}, column(t, source, "charges"))
}

func TestNullValueHandler_Errors(t *testing.T) {
	source := newTable(t, []string{"a"}, []any{nil})

	_, err := NullValueHandler{Strategy: NullFill}.Process(context.Background(), source)
	assert.Error(t, err)

	_, err = NullValueHandler{Strategy: "median"}.Process(context.Background(), source)
	assert.Error(t, err)

	_, err = ParseNullStrategy("median")
	assert.Error(t, err)

	strategy, err := ParseNullStrategy(" Forward_Fill ")
	require.NoError(t, err)
	assert.Equal(t, NullForwardFill, strategy)
}

func TestParseFillValue(t *testing.T) {
	assert.Equal(t, int64(0), ParseFillValue("0"))
	assert.Equal(t, 1.5, ParseFillValue("1.5"))
	assert.Equal(t, "unknown", ParseFillValue("unknown"))
}

func TestDuplicateRemover(t *testing.T) {
	source := newTable(t, []string{"customerID", "gender", "tenure"},
		[]any{"A", "Male", int64(1)},
		[]any{"B", "Female", int64(2)},
		[]any{"A", "Male", int64(1)},
		[]any{"C", "Male", int64(3)},
		[]any{"B", "Female", int64(9)},
	)

	tests := []struct {
		name     string
		remover  DuplicateRemover
		expected []any
	}{
		{name: "whole rows keep first", remover: DuplicateRemover{Keep: KeepFirst}, expected: []any{int64(1), int64(2), int64(3), int64(9)}},
		{name: "subset keep first", remover: DuplicateRemover{Subset: []string{"customerID"}, Keep: KeepFirst}, expected: []any{int64(1), int64(2), int64(3)}},
		{name: "subset keep last", remover: DuplicateRemover{Subset: []string{"customerID"}, Keep: KeepLast}, expected: []any{int64(1), int64(3), int64(9)}},
		{name: "subset keep none", remover: DuplicateRemover{Subset: []string{"customerID"}, Keep: KeepNone}, expected: []any{int64(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.remover.Process(context.Background(), source)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, column(t, result, "tenure"))
		})
	}

	_, err := DuplicateRemover{Subset: []string{"missing"}}.Process(context.Background(), source)
	assert.True(t, errors.Is(err, dbqprep.ErrColumnNotFound))

	_, err = ParseKeep("all")
	assert.Error(t, err)
}

func TestDuplicateRemover_DistinguishesTypes(t *testing.T) {
	source := newTable(t, []string{"v"}, []any{"1"}, []any{int64(1)}, []any{nil}, []any{nil})

	result, err := DuplicateRemover{Keep: KeepFirst}.Process(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NumRows())
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, Quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 3.25, Quantile(sorted, 0.75), 1e-9)
	assert.Equal(t, 4.0, Quantile(sorted, 1))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.5))

	lower, upper := IQRBounds([]float64{4, 3, 2, 1}, 1.5)
	assert.InDelta(t, -0.5, lower, 1e-9)
	assert.InDelta(t, 5.5, upper, 1e-9)
}

func TestOutlierRemover(t *testing.T) {
	source := newTable(t, []string{"id", "monthly"},
		[]any{int64(1), 10.0},
		[]any{int64(2), 11.0},
		[]any{int64(3), 12.0},
		[]any{int64(4), 13.0},
		[]any{int64(5), 500.0},
		[]any{int64(6), nil},
	)

	result, err := OutlierRemover{Columns: []string{"monthly", "absent"}}.Process(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, column(t, result, "id"))

	text := newTable(t, []string{"gender"}, []any{"Male"})
	_, err = OutlierRemover{Columns: []string{"gender"}}.Process(context.Background(), text)
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	source := newTable(t, []string{"id", "charges"},
		[]any{int64(1), 10.0},
		[]any{int64(1), 10.0},
		[]any{int64(2), nil},
		[]any{int64(3), 30.0},
	)

	chain := NewChain(logger).
		Add(NullValueHandler{Strategy: NullDrop}).
		Add(DuplicateRemover{Keep: KeepFirst})
	assert.Equal(t, 2, chain.Len())

	result, err := chain.Run(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NumRows())
	assert.Contains(t, buf.String(), "rows_before=4 rows_after=3")
	assert.Contains(t, buf.String(), "rows_before=3 rows_after=2")
	assert.InDelta(t, 50.0, Retention(source.NumRows(), result.NumRows()), 1e-9)

	failing := NewChain(nil).Add(NullValueHandler{Strategy: "bogus"})
	_, err = failing.Run(context.Background(), source)
	assert.ErrorContains(t, err, "cleaning step 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chain.Run(ctx, source)
	assert.ErrorIs(t, err, context.Canceled)
}
