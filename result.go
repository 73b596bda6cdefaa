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

// maxUnexpectedSample caps the unexpected values and row indices kept per check.
const maxUnexpectedSample = 20

// CheckResult is the outcome of one materialized check. It is created once by
// the evaluator and never modified afterwards.
type CheckResult struct {
	Rule             RuleKind         `json:"rule"`
	Check            string           `json:"check"`
	Column           string           `json:"column,omitempty"`
	Success          bool             `json:"success"`
	ObservedValue    any              `json:"observed_value,omitempty"`
	ElementCount     int64            `json:"element_count"`
	UnexpectedCount  int64            `json:"unexpected_count"`
	UnexpectedValues []any            `json:"unexpected_values,omitempty"`
	UnexpectedRows   []int64          `json:"unexpected_rows,omitempty"`
	EvaluationError  *EvaluationError `json:"evaluation_error,omitempty"`
}

// ObservedRange is the observed value of a range check: the smallest and
// largest numeric values seen in the column.
type ObservedRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *CheckResult) recordUnexpected(row int64, value any) {
	r.UnexpectedCount++
	if len(r.UnexpectedRows) < maxUnexpectedSample {
		r.UnexpectedRows = append(r.UnexpectedRows, row)
	}
	if value == nil || len(r.UnexpectedValues) >= maxUnexpectedSample {
		return
	}
	key := ValueKey(value)
	for _, seen := range r.UnexpectedValues {
		if ValueKey(seen) == key {
			return
		}
	}
	r.UnexpectedValues = append(r.UnexpectedValues, value)
}

func failedResult(check Check, reason string) *CheckResult {
	return &CheckResult{
		Rule:    check.Rule.kind,
		Check:   check.Label(),
		Column:  check.Column,
		Success: false,
		EvaluationError: &EvaluationError{
			Rule:   check.Rule.kind,
			Column: check.Column,
			Reason: reason,
		},
	}
}
