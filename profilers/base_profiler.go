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

package profilers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/DataBridgeTech/dbqprep"
)

// BaseProfiler profiles any validation target that can list its columns.
// Numeric aggregates are pushed down to targets implementing
// dbqprep.NumericStatsProvider and computed from the values otherwise.
type BaseProfiler struct {
	logger *slog.Logger
}

func NewBaseProfiler(logger *slog.Logger) dbqprep.DbqDataProfiler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BaseProfiler{logger: logger}
}

func (p *BaseProfiler) ProfileDataset(ctx context.Context, target dbqprep.ValidationTarget, opts dbqprep.ProfileOptions) (*dbqprep.TableMetrics, error) {
	startTime := time.Now()

	lister, ok := target.(dbqprep.ColumnLister)
	if !ok {
		return nil, fmt.Errorf("target %T does not list its columns", target)
	}

	metrics := &dbqprep.TableMetrics{
		ProfiledAt:     time.Now().Unix(),
		DatasetName:    opts.DatasetName,
		ColumnsMetrics: make(map[string]*dbqprep.ColumnMetrics),
	}

	totalRows, err := target.RowCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get total row count for %s: %w", opts.DatasetName, err)
	}
	metrics.TotalRows = totalRows

	columns, err := lister.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns for %s: %w", opts.DatasetName, err)
	}
	metrics.TotalColumns = len(columns)

	if len(columns) == 0 {
		p.logger.Warn("no columns found for dataset, returning basic info", "dataset", opts.DatasetName)
		metrics.ProfilingDurationMs = time.Since(startTime).Milliseconds()
		return metrics, nil
	}

	p.logger.Debug(fmt.Sprintf("found %d columns to process", len(columns)))

	taskPool := dbqprep.NewTaskPool(ctx, opts.MaxConcurrent, p.logger)
	profiles := make([]*columnProfile, len(columns))

	for i, name := range columns {
		prof := &columnProfile{
			metrics: &dbqprep.ColumnMetrics{ColumnName: name, ColumnPosition: uint(i + 1)},
			started: time.Now(),
		}
		profiles[i] = prof
		taskIdPrefix := fmt.Sprintf("task:%s:", name)

		p.logger.Debug("start column processing", "col_name", name)

		taskPool.Enqueue(taskIdPrefix+"null_count", func(ctx context.Context) error {
			nullCount, err := target.NullCount(ctx, name)
			if err != nil {
				p.logger.Warn("failed to get NULL count", "error", err.Error(), "col_name", name)
				return err
			}
			prof.update(func(m *dbqprep.ColumnMetrics) { m.NullCount = nullCount })
			return nil
		})

		taskPool.Enqueue(taskIdPrefix+"distinct_count", func(ctx context.Context) error {
			distinct, err := target.DistinctCount(ctx, name)
			if err != nil {
				p.logger.Warn("failed to get distinct count", "error", err.Error(), "col_name", name)
				return err
			}
			prof.update(func(m *dbqprep.ColumnMetrics) { m.DistinctCount = distinct })
			return nil
		})

		taskPool.Enqueue(taskIdPrefix+"values", func(ctx context.Context) error {
			return p.scanColumn(ctx, target, name, prof)
		})
	}

	taskPool.Join()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, prof := range profiles {
		metrics.ColumnsMetrics[prof.metrics.ColumnName] = prof.metrics
	}
	metrics.ProfilingDurationMs = time.Since(startTime).Milliseconds()

	if opts.CollectErrors {
		metrics.DbqErrors = taskPool.Errors()
	}

	p.logger.Debug("finished data profiling for dataset",
		"dataset", opts.DatasetName,
		"profile_duration_ms", metrics.ProfilingDurationMs)

	return metrics, nil
}

// scanColumn reads the column once for its type, blank count, most frequent
// value and, when the target cannot compute them, numeric aggregates.
func (p *BaseProfiler) scanColumn(ctx context.Context, target dbqprep.ValidationTarget, column string, prof *columnProfile) error {
	dtype, err := target.DType(ctx, column)
	if err != nil {
		p.logger.Warn("failed to get column type", "error", err.Error(), "col_name", column)
		return err
	}
	numeric := dtype == dbqprep.DTypeInt || dtype == dbqprep.DTypeFloat

	var pushed *dbqprep.NumericStats
	if provider, ok := target.(dbqprep.NumericStatsProvider); ok && numeric {
		if pushed, err = provider.NumericStats(ctx, column); err != nil {
			p.logger.Warn("failed to get numeric aggregates", "error", err.Error(), "col_name", column)
			return err
		}
	}

	values, err := target.Values(ctx, column)
	if err != nil {
		return err
	}

	var acc valueAccumulator
	for v, err := range values {
		if err != nil {
			return err
		}
		acc.add(v, numeric && pushed == nil)
	}

	prof.update(func(m *dbqprep.ColumnMetrics) {
		m.DataType = dtype
		m.MostFrequentValue = acc.mostFrequent()
		if dtype == dbqprep.DTypeString {
			blanks := acc.blanks
			m.BlankCount = &blanks
		}
		stats := pushed
		if numeric && stats == nil {
			stats = acc.numericStats()
		}
		if stats != nil {
			m.MinValue, m.MaxValue, m.AvgValue, m.StddevValue = stats.MinValue, stats.MaxValue, stats.AvgValue, stats.StddevValue
		}
	})
	return nil
}

type columnProfile struct {
	mu      sync.Mutex
	metrics *dbqprep.ColumnMetrics
	started time.Time
}

func (c *columnProfile) update(fn func(m *dbqprep.ColumnMetrics)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.metrics)
	c.metrics.ProfilingDurationMs = time.Since(c.started).Milliseconds()
}

// valueAccumulator keeps streaming statistics over the values of one column.
type valueAccumulator struct {
	blanks int64

	counts map[string]int
	first  map[string]any
	order  []string

	n        int64
	mean, m2 float64
	min, max float64
}

func (a *valueAccumulator) add(v any, numeric bool) {
	if dbqprep.IsNull(v) {
		return
	}
	if s, ok := v.(string); ok && isBlank(s) {
		a.blanks++
	}

	key := dbqprep.ValueKey(v)
	if a.counts == nil {
		a.counts = make(map[string]int)
		a.first = make(map[string]any)
	}
	if _, seen := a.counts[key]; !seen {
		a.first[key] = v
		a.order = append(a.order, key)
	}
	a.counts[key]++

	if !numeric {
		return
	}
	f, err := dbqprep.ToFloat64(v)
	if err != nil {
		return
	}
	// Welford's online algorithm
	a.n++
	if a.n == 1 {
		a.min, a.max = f, f
	} else {
		a.min, a.max = math.Min(a.min, f), math.Max(a.max, f)
	}
	delta := f - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (f - a.mean)
}

func (a *valueAccumulator) mostFrequent() *string {
	var best string
	bestCount := 0
	for _, key := range a.order {
		if a.counts[key] > bestCount {
			best, bestCount = key, a.counts[key]
		}
	}
	if bestCount == 0 {
		return nil
	}
	s := fmt.Sprint(a.first[best])
	return &s
}

func (a *valueAccumulator) numericStats() *dbqprep.NumericStats {
	if a.n == 0 {
		return nil
	}
	lo, hi, avg := a.min, a.max, a.mean
	stddev := math.Sqrt(a.m2 / float64(a.n))
	return &dbqprep.NumericStats{MinValue: &lo, MaxValue: &hi, AvgValue: &avg, StddevValue: &stddev}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
