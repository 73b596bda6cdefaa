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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataBridgeTech/dbqprep"
)

const churnSample = `customerID,gender,SeniorCitizen,tenure,MonthlyCharges,TotalCharges
7590-VHVEG,Female,0,1,29.85,29.85
5575-GNVDE,Male,0,34,56.95,1889.5
3668-QPYBK,Male,1,2,53.85, 
9237-HQITU,Female,0,45,42.3,NA
`

func readSample(t *testing.T) *Table {
	t.Helper()
	tbl, err := ReadCSV(strings.NewReader(churnSample), CSVOptions{})
	require.NoError(t, err)
	return tbl
}

func TestReadCSV_InfersColumnTypes(t *testing.T) {
	tbl := readSample(t)

	assert.Equal(t, 4, tbl.NumRows())
	assert.Equal(t, 6, tbl.NumColumns())

	expected := map[string]dbqprep.DType{
		"customerID":     dbqprep.DTypeString,
		"gender":         dbqprep.DTypeString,
		"SeniorCitizen":  dbqprep.DTypeInt,
		"tenure":         dbqprep.DTypeInt,
		"MonthlyCharges": dbqprep.DTypeFloat,
		"TotalCharges":   dbqprep.DTypeString,
	}
	for name, dtype := range expected {
		got, ok := tbl.ColumnDType(name)
		require.True(t, ok, name)
		assert.Equal(t, dtype, got, name)
	}

	tenure, _ := tbl.Column("tenure")
	assert.Equal(t, []any{int64(1), int64(34), int64(2), int64(45)}, tenure)

	total, _ := tbl.Column("TotalCharges")
	assert.Equal(t, []any{"29.85", "1889.5", " ", nil}, total)
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
}

func TestReadCSV_RawStrings(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,b\n1,x\n2,\n"), CSVOptions{RawStrings: true})
	require.NoError(t, err)

	a, _ := tbl.Column("a")
	assert.Equal(t, []any{"1", "2"}, a)
	b, _ := tbl.Column("b")
	assert.Equal(t, []any{"x", nil}, b)
}

func TestCoerceNumeric(t *testing.T) {
	tbl := readSample(t)

	coerced, failures, err := tbl.CoerceNumeric("TotalCharges")
	require.NoError(t, err)

	total, _ := coerced.Column("TotalCharges")
	assert.Equal(t, []any{29.85, 1889.5, nil, nil}, total)
	assert.Equal(t, 1, failures["TotalCharges"])

	dtype, _ := coerced.ColumnDType("TotalCharges")
	assert.Equal(t, dbqprep.DTypeFloat, dtype)

	// source table is untouched
	original, _ := tbl.Column("TotalCharges")
	assert.Equal(t, " ", original[2])

	_, _, err = tbl.CoerceNumeric("missing")
	assert.True(t, errors.Is(err, dbqprep.ErrColumnNotFound))
}

func TestTable_ValidationTarget(t *testing.T) {
	ctx := context.Background()
	tbl := readSample(t)

	rows, err := tbl.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rows)

	cols, err := tbl.ColumnCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, cols)

	ok, err := tbl.HasColumn(ctx, "gender")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.HasColumn(ctx, "Churn")
	require.NoError(t, err)
	assert.False(t, ok)

	nulls, err := tbl.NullCount(ctx, "TotalCharges")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nulls)

	distinct, err := tbl.DistinctCount(ctx, "gender")
	require.NoError(t, err)
	assert.Equal(t, int64(2), distinct)

	_, err = tbl.NullCount(ctx, "Churn")
	assert.True(t, errors.Is(err, dbqprep.ErrColumnNotFound))
	_, err = tbl.Values(ctx, "Churn")
	assert.True(t, errors.Is(err, dbqprep.ErrColumnNotFound))
	_, err = tbl.DType(ctx, "Churn")
	assert.True(t, errors.Is(err, dbqprep.ErrColumnNotFound))
}

func TestTable_ValuesIsRestartable(t *testing.T) {
	ctx := context.Background()
	tbl := readSample(t)

	seq, err := tbl.Values(ctx, "gender")
	require.NoError(t, err)

	collect := func() []any {
		var out []any
		for v, err := range seq {
			require.NoError(t, err)
			out = append(out, v)
		}
		return out
	}
	first := collect()
	assert.Equal(t, []any{"Female", "Male", "Male", "Female"}, first)
	assert.Equal(t, first, collect())
}

func TestTable_ValuesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tbl := readSample(t)
	seq, err := tbl.Values(ctx, "gender")
	require.NoError(t, err)

	for _, err := range seq {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestTable_RowOperations(t *testing.T) {
	tbl := readSample(t)

	selected := tbl.SelectRows([]int{3, 0})
	assert.Equal(t, 2, selected.NumRows())
	assert.Equal(t, "9237-HQITU", selected.Row(0)[0])
	assert.Equal(t, "7590-VHVEG", selected.Row(1)[0])

	males := tbl.FilterRows(func(r int) bool { return tbl.Row(r)[1] == "Male" })
	assert.Equal(t, 2, males.NumRows())

	var indices []int
	for r, row := range tbl.Rows() {
		indices = append(indices, r)
		assert.Len(t, row, 6)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, indices)

	_, err := tbl.WithColumn("gender", []any{"x"})
	assert.Error(t, err)
}

func TestFromColumns_Errors(t *testing.T) {
	_, err := FromColumns([]string{"a", "a"}, [][]any{{1}, {2}})
	assert.Error(t, err)

	_, err = FromColumns([]string{"a", "b"}, [][]any{{1}, {2, 3}})
	assert.Error(t, err)

	_, err = New([]string{"a", "b"}, [][]any{{1}})
	assert.Error(t, err)
}

func TestWriteCSV_RoundTripsValues(t *testing.T) {
	tbl := readSample(t)
	coerced, _, err := tbl.CoerceNumeric("TotalCharges")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, coerced))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "customerID,gender,SeniorCitizen,tenure,MonthlyCharges,TotalCharges", lines[0])
	assert.Equal(t, "3668-QPYBK,Male,1,2,53.85,", lines[3])

	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, WriteCSVFile(path, coerced))
	_, err = os.Stat(path)
	require.NoError(t, err)

	reread, err := ReadCSVFile(path, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, coerced.NumRows(), reread.NumRows())
	total, _ := reread.Column("TotalCharges")
	assert.Equal(t, []any{29.85, 1889.5, nil, nil}, total)
}
