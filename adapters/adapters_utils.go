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
	"strconv"
	"strings"
	"time"

	"github.com/DataBridgeTech/dbqprep"
)

// WarehouseTarget is a validation target backed by a live database connection.
type WarehouseTarget interface {
	dbqprep.ValidationTarget
	dbqprep.ColumnLister
	dbqprep.NumericStatsProvider

	Ping(ctx context.Context) error
	Close() error
}

type columnInfo struct {
	Name     string
	Type     string
	Position uint
}

// splitDataset splits "schema.table" into its parts. A bare table name
// yields an empty schema.
func splitDataset(dataset string) (schema string, table string, err error) {
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return "", "", fmt.Errorf("dataset name is empty")
	}

	parts := strings.SplitN(dataset, ".", 2)
	if len(parts) == 1 {
		return "", parts[0], nil
	}

	schema, table = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if schema == "" || table == "" {
		return "", "", fmt.Errorf("invalid dataset name %q, expected schema.table", dataset)
	}
	return schema, table, nil
}

// dtypeFromSQLType maps a warehouse column type to a DType tag. It covers
// PostgreSQL, MySQL and ClickHouse type names.
func dtypeFromSQLType(sqlType string) dbqprep.DType {
	t := baseSQLType(sqlType)
	if strings.HasPrefix(t, "tinyint(1)") {
		return dbqprep.DTypeBool
	}

	switch {
	case hasAnyPrefix(t, "interval") || strings.HasSuffix(t, "range"):
		return dbqprep.DTypeUnknown
	case hasAnyPrefix(t, "bool"):
		return dbqprep.DTypeBool
	case hasAnyPrefix(t, "int", "uint", "bigint", "smallint", "tinyint", "mediumint", "serial", "bigserial", "smallserial", "year"):
		return dbqprep.DTypeInt
	case hasAnyPrefix(t, "float", "double", "decimal", "numeric", "real"):
		return dbqprep.DTypeFloat
	case hasAnyPrefix(t, "date", "timestamp", "time"):
		return dbqprep.DTypeDatetime
	case hasAnyPrefix(t, "char", "varchar", "character", "text", "tinytext", "mediumtext", "longtext",
		"string", "fixedstring", "enum", "uuid", "json", "citext"):
		return dbqprep.DTypeString
	}
	return dbqprep.DTypeUnknown
}

// baseSQLType lower-cases a column type and strips the ClickHouse
// Nullable and LowCardinality wrappers.
func baseSQLType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	for unwrapped := false; !unwrapped; {
		unwrapped = true
		for _, wrapper := range []string{"nullable(", "lowcardinality("} {
			if strings.HasPrefix(t, wrapper) && strings.HasSuffix(t, ")") {
				t = strings.TrimSuffix(strings.TrimPrefix(t, wrapper), ")")
				unwrapped = false
			}
		}
	}
	return t
}

// sortableSQLType reports whether rows can be ordered by a column of this type.
// PostgreSQL json and geometric types have no ordering operator; ClickHouse
// maps, JSON objects and aggregate states cannot appear in ORDER BY.
func sortableSQLType(sqlType string) bool {
	t := baseSQLType(sqlType)
	if t == "json" || t == "xml" {
		return false
	}
	return !hasAnyPrefix(t, "point", "line", "lseg", "box", "path", "polygon", "circle",
		"map(", "object(", "json(", "aggregatefunction(", "variant(", "dynamic")
}

// orderByClause orders rows by every sortable column in table order, giving
// Values a stable row order across runs.
func orderByClause(columns []columnInfo, quote func(string) string) string {
	keys := make([]string, 0, len(columns))
	for _, col := range columns {
		if sortableSQLType(col.Type) {
			keys = append(keys, quote(col.Name))
		}
	}
	if len(keys) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(keys, ", ")
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// normalizeValue converts driver values to the types the rule engine compares:
// int64, float64, string, bool and time.Time. Text encoded numbers of numeric
// columns are parsed.
func normalizeValue(v any, dtype dbqprep.DType) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		v = string(val)
	case fmt.Stringer:
		if _, isTime := v.(time.Time); !isTime {
			v = val.String()
		}
	}

	s, isString := v.(string)
	if !isString {
		return v
	}
	switch dtype {
	case dbqprep.DTypeInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case dbqprep.DTypeFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case dbqprep.DTypeBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

func appendWhere(query string, where string) string {
	if where == "" {
		return query
	}
	return fmt.Sprintf("%s WHERE %s", query, where)
}

func findColumn(columns []columnInfo, name string) (columnInfo, bool) {
	for _, col := range columns {
		if col.Name == name {
			return col, true
		}
	}
	return columnInfo{}, false
}
