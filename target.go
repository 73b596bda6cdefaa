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

package dbqprep

import (
	"context"
	"fmt"
	"iter"
)

// DType is a coarse, library-independent column type tag.
type DType string

const (
	DTypeInt      DType = "int"
	DTypeFloat    DType = "float"
	DTypeString   DType = "string"
	DTypeBool     DType = "bool"
	DTypeDatetime DType = "datetime"
	DTypeUnknown  DType = "unknown"
)

var knownDTypes = map[DType]bool{
	DTypeInt:      true,
	DTypeFloat:    true,
	DTypeString:   true,
	DTypeBool:     true,
	DTypeDatetime: true,
}

// ParseDType maps a type tag to a DType. Common aliases such as "float64",
// "double" or "str" are accepted.
func ParseDType(tag string) (DType, error) {
	switch tag {
	case "int", "int64", "integer", "bigint":
		return DTypeInt, nil
	case "float", "float64", "double", "numeric", "decimal":
		return DTypeFloat, nil
	case "string", "str", "text", "object":
		return DTypeString, nil
	case "bool", "boolean":
		return DTypeBool, nil
	case "datetime", "timestamp", "date":
		return DTypeDatetime, nil
	}
	return DTypeUnknown, fmt.Errorf("unknown type tag %q", tag)
}

// ValidationTarget is the read-only view of a tabular dataset the rule engine
// evaluates against. Counts must cover the full logical dataset.
type ValidationTarget interface {
	RowCount(ctx context.Context) (int64, error)
	ColumnCount(ctx context.Context) (int, error)
	HasColumn(ctx context.Context, name string) (bool, error)

	// Values returns a lazy, finite sequence of the column cells in row order.
	// The sequence may be ranged over more than once.
	Values(ctx context.Context, column string) (iter.Seq2[any, error], error)

	NullCount(ctx context.Context, column string) (int64, error)
	DistinctCount(ctx context.Context, column string) (int64, error)
	DType(ctx context.Context, column string) (DType, error)
}

// ColumnLister is implemented by targets that can enumerate their columns in schema order.
type ColumnLister interface {
	Columns(ctx context.Context) ([]string, error)
}
