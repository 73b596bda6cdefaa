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

import "context"

// DbqDataProfiler is the interface that wraps the dataset profiling entry point.
type DbqDataProfiler interface {
	ProfileDataset(ctx context.Context, target ValidationTarget, opts ProfileOptions) (*TableMetrics, error)
}

// ProfileOptions controls a profiling run.
type ProfileOptions struct {
	DatasetName   string
	MaxConcurrent int
	// CollectErrors keeps per-task errors on the returned metrics instead of dropping them.
	CollectErrors bool
}

// NumericStatsProvider is implemented by targets that can compute numeric
// aggregates themselves, e.g. with a single SQL query.
type NumericStatsProvider interface {
	NumericStats(ctx context.Context, column string) (*NumericStats, error)
}

// NumericStats represents the numeric statistics of a column.
type NumericStats struct {
	MinValue    *float64
	MaxValue    *float64
	AvgValue    *float64
	StddevValue *float64
}

// TableMetrics represents the metrics of a dataset.
type TableMetrics struct {
	ProfiledAt          int64                     `json:"profiled_at"`
	DatasetName         string                    `json:"dataset_name"`
	TotalRows           int64                     `json:"total_rows"`
	TotalColumns        int                       `json:"total_columns"`
	ColumnsMetrics      map[string]*ColumnMetrics `json:"columns_metrics"`
	ProfilingDurationMs int64                     `json:"profiling_duration_ms"`
	DbqErrors           []error                   `json:"-"`
}

// ColumnMetrics represents the metrics of a column.
type ColumnMetrics struct {
	ColumnName          string   `json:"col_name"`
	ColumnPosition      uint     `json:"col_position"`
	DataType            DType    `json:"data_type"`
	NullCount           int64    `json:"null_count"`
	DistinctCount       int64    `json:"distinct_count"`
	BlankCount          *int64   `json:"blank_count,omitempty"`         // string only
	MinValue            *float64 `json:"min_value,omitempty"`           // numeric only
	MaxValue            *float64 `json:"max_value,omitempty"`           // numeric only
	AvgValue            *float64 `json:"avg_value,omitempty"`           // numeric only
	StddevValue         *float64 `json:"stddev_value,omitempty"`        // numeric only (Population StdDev)
	MostFrequentValue   *string  `json:"most_frequent_value,omitempty"` // pointer to handle NULL as most frequent
	ProfilingDurationMs int64    `json:"profiling_duration_ms"`
}
