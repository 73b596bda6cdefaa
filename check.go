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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Check is one materialized unit of evaluation: a rule bound to a single
// column, or to the table for table level rules.
type Check struct {
	Rule   *Rule
	Column string
}

func (c Check) Label() string {
	return c.Rule.Label(c.Column)
}

// Run evaluates the check against target. Problems with the check itself are
// reported on the returned result; only target access failures and context
// errors are returned as errors.
func (c Check) Run(ctx context.Context, target ValidationTarget) (*CheckResult, error) {
	res := &CheckResult{
		Rule:   c.Rule.kind,
		Check:  c.Label(),
		Column: c.Column,
	}

	err := c.evaluate(ctx, target, res)
	if err == nil {
		return res, nil
	}
	if IsTargetAccessError(err) || ctx.Err() != nil {
		return nil, err
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return failedResult(c, evalErr.Reason), nil
	}
	return failedResult(c, err.Error()), nil
}

func (c Check) evaluate(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	r := c.Rule

	if !r.kind.TableScoped() && r.kind != RuleColumnExists {
		exists, err := target.HasColumn(ctx, c.Column)
		if err != nil {
			return err
		}
		if !exists {
			return &EvaluationError{Rule: r.kind, Column: c.Column, Reason: "column not found in target"}
		}
	}

	switch r.kind {
	case RuleColumnExists:
		return c.checkExists(ctx, target, res)
	case RuleColumnNotNull:
		return c.checkNotNull(ctx, target, res)
	case RuleValueSet:
		return c.checkValues(ctx, target, res, func(v any) bool {
			_, ok := r.allowed[ValueKey(v)]
			return ok
		})
	case RuleNumericRange:
		return c.checkRange(ctx, target, res)
	case RuleColumnType:
		return c.checkType(ctx, target, res)
	case RuleUnique:
		return c.checkUnique(ctx, target, res)
	case RuleRowCountBound:
		return c.checkRowCount(ctx, target, res)
	case RuleColumnCountBound:
		return c.checkColumnCount(ctx, target, res)
	case RuleColumnExpression:
		return c.checkValues(ctx, target, res, func(v any) bool {
			return matchExpression(r.program, v)
		})
	}
	return fmt.Errorf("unsupported rule kind %q", r.kind)
}

func (c Check) checkExists(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	exists, err := target.HasColumn(ctx, c.Column)
	if err != nil {
		return err
	}
	res.ObservedValue = exists
	res.Success = exists
	if !exists {
		res.UnexpectedCount = 1
	}
	return nil
}

func (c Check) checkNotNull(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	rows, err := target.RowCount(ctx)
	if err != nil {
		return err
	}
	nulls, err := target.NullCount(ctx, c.Column)
	if err != nil {
		return err
	}

	res.ElementCount = rows
	res.ObservedValue = nulls
	res.Success = nulls == 0
	if res.Success {
		return nil
	}

	// locate the offending rows; the count itself comes from the target
	values, err := target.Values(ctx, c.Column)
	if err != nil {
		return err
	}
	var row int64
	for v, err := range values {
		if err != nil {
			return err
		}
		if IsNull(v) && len(res.UnexpectedRows) < maxUnexpectedSample {
			res.UnexpectedRows = append(res.UnexpectedRows, row)
		}
		row++
	}
	res.UnexpectedCount = nulls
	return nil
}

// checkValues applies a per-cell predicate to every non-null value of the column.
func (c Check) checkValues(ctx context.Context, target ValidationTarget, res *CheckResult, match func(v any) bool) error {
	values, err := target.Values(ctx, c.Column)
	if err != nil {
		return err
	}

	var row int64
	for v, err := range values {
		if err != nil {
			return err
		}
		if !IsNull(v) && !match(v) {
			res.recordUnexpected(row, v)
		}
		row++
	}

	res.ElementCount = row
	res.Success = res.UnexpectedCount == 0
	return nil
}

func (c Check) checkRange(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	cfg := c.Rule.cfg
	values, err := target.Values(ctx, c.Column)
	if err != nil {
		return err
	}

	var observed *ObservedRange
	var row int64
	for v, err := range values {
		if err != nil {
			return err
		}
		idx := row
		row++
		if IsNull(v) {
			continue
		}

		f, convErr := ToFloat64(v)
		if convErr != nil || IsNull(f) {
			if cfg.OnNonNumeric == NonNumericFail {
				res.recordUnexpected(idx, v)
			}
			continue
		}

		if observed == nil {
			observed = &ObservedRange{Min: f, Max: f}
		} else {
			observed.Min = min(observed.Min, f)
			observed.Max = max(observed.Max, f)
		}

		if (cfg.Min != nil && f < *cfg.Min) || (cfg.Max != nil && f > *cfg.Max) {
			res.recordUnexpected(idx, v)
		}
	}

	if observed != nil {
		res.ObservedValue = *observed
	}
	res.ElementCount = row
	res.Success = res.UnexpectedCount == 0
	return nil
}

func (c Check) checkType(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	expected := c.Rule.cfg.ExpectedType
	dtype, err := target.DType(ctx, c.Column)
	if err != nil {
		return err
	}

	if dtype == expected {
		rows, err := target.RowCount(ctx)
		if err != nil {
			return err
		}
		res.ObservedValue = string(dtype)
		res.ElementCount = rows
		res.Success = true
		return nil
	}

	// stored type differs: accept the column when every value converts to the expected type
	if err := c.checkValues(ctx, target, res, func(v any) bool {
		return convertibleTo(v, expected)
	}); err != nil {
		return err
	}
	res.ObservedValue = string(dtype)
	return nil
}

func (c Check) checkUnique(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	rows, err := target.RowCount(ctx)
	if err != nil {
		return err
	}
	nulls, err := target.NullCount(ctx, c.Column)
	if err != nil {
		return err
	}
	distinct, err := target.DistinctCount(ctx, c.Column)
	if err != nil {
		return err
	}

	duplicates := rows - nulls - distinct
	res.ElementCount = rows
	res.ObservedValue = distinct
	res.Success = duplicates <= 0
	if res.Success {
		return nil
	}

	values, err := target.Values(ctx, c.Column)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, distinct)
	var row int64
	for v, err := range values {
		if err != nil {
			return err
		}
		if !IsNull(v) {
			key := ValueKey(v)
			if _, dup := seen[key]; dup {
				res.recordUnexpected(row, v)
			} else {
				seen[key] = struct{}{}
			}
		}
		row++
	}
	res.UnexpectedCount = duplicates
	return nil
}

func (c Check) checkRowCount(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	cfg := c.Rule.cfg
	rows, err := target.RowCount(ctx)
	if err != nil {
		return err
	}

	n := float64(rows)
	res.ObservedValue = rows
	res.ElementCount = rows
	res.Success = (cfg.Min == nil || n >= *cfg.Min) && (cfg.Max == nil || n <= *cfg.Max)
	if !res.Success {
		res.UnexpectedCount = 1
	}
	return nil
}

func (c Check) checkColumnCount(ctx context.Context, target ValidationTarget, res *CheckResult) error {
	cols, err := target.ColumnCount(ctx)
	if err != nil {
		return err
	}

	res.ObservedValue = cols
	res.ElementCount = int64(cols)
	res.Success = cols == c.Rule.cfg.ExpectedCount
	if !res.Success {
		res.UnexpectedCount = 1
	}
	return nil
}

var datetimeLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

// convertibleTo reports whether a single non-null value can be read as the expected type.
func convertibleTo(v any, expected DType) bool {
	switch expected {
	case DTypeInt:
		return isIntegral(v)
	case DTypeFloat:
		if _, isBool := v.(bool); isBool {
			return false
		}
		_, err := ToFloat64(v)
		return err == nil
	case DTypeString:
		return InferDType(v) == DTypeString
	case DTypeBool:
		switch val := v.(type) {
		case bool:
			return true
		case string:
			_, err := strconv.ParseBool(strings.TrimSpace(val))
			return err == nil
		}
	case DTypeDatetime:
		switch val := v.(type) {
		case time.Time:
			return true
		case string:
			for _, layout := range datetimeLayouts {
				if _, err := time.Parse(layout, strings.TrimSpace(val)); err == nil {
					return true
				}
			}
		}
	}
	return false
}

// Apply evaluates every check of the rule against target in column order.
func (r *Rule) Apply(ctx context.Context, target ValidationTarget) ([]*CheckResult, error) {
	checks := r.Checks()
	results := make([]*CheckResult, 0, len(checks))
	for _, check := range checks {
		res, err := check.Run(ctx, target)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
