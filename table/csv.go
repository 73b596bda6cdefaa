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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultNullTokens are the cell values read as null.
var DefaultNullTokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// CSVOptions controls how delimited text is read into a Table.
type CSVOptions struct {
	Comma      rune
	NullTokens []string
	// RawStrings disables per-column numeric inference.
	RawStrings bool
}

func (o CSVOptions) withDefaults() CSVOptions {
	if o.Comma == 0 {
		o.Comma = ','
	}
	if o.NullTokens == nil {
		o.NullTokens = DefaultNullTokens
	}
	return o
}

// ReadCSV reads a header line followed by records. Columns whose non-null
// cells all parse as integers become int64, those that parse as numbers
// become float64, anything else stays string.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Comma
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv input has no header line")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	nulls := make(map[string]struct{}, len(opts.NullTokens))
	for _, tok := range opts.NullTokens {
		nulls[tok] = struct{}{}
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		for c, cell := range record {
			raw[c] = append(raw[c], cell)
		}
	}

	columns := make([][]any, len(header))
	for c := range header {
		columns[c] = convertColumn(raw[c], nulls, opts.RawStrings)
	}
	return FromColumns(header, columns)
}

func convertColumn(cells []string, nulls map[string]struct{}, rawStrings bool) []any {
	values := make([]any, len(cells))
	allInt, allFloat := !rawStrings, !rawStrings
	for i, cell := range cells {
		if _, ok := nulls[cell]; ok {
			continue
		}
		values[i] = cell
		if allInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allFloat = false
			}
		}
	}

	switch {
	case allInt:
		for i, v := range values {
			if v != nil {
				values[i], _ = strconv.ParseInt(v.(string), 10, 64)
			}
		}
	case allFloat:
		for i, v := range values {
			if v != nil {
				values[i], _ = strconv.ParseFloat(v.(string), 64)
			}
		}
	}
	return values
}

// ReadCSVFile reads the CSV file at path.
func ReadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes the header and every row. Nulls are written as empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.names); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(t.names))
	for r := 0; r < t.rows; r++ {
		for c := range t.columns {
			record[c] = formatCell(t.columns[c][r])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes t to path, creating parent directories.
func WriteCSVFile(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val != val {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
