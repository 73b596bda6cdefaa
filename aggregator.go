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
	"fmt"
	"log/slog"
)

// DefaultReportLimit is the number of failures kept in a report by default.
const DefaultReportLimit = 10

// ValidationReport is the aggregated verdict of one validation run.
type ValidationReport struct {
	OverallSuccess   bool           `json:"overall_success"`
	TotalChecks      int            `json:"total_checks"`
	SuccessfulChecks int            `json:"successful_checks"`
	FailedChecks     int            `json:"failed_checks"`
	SuccessRate      float64        `json:"success_rate"`
	NoChecks         bool           `json:"no_checks,omitempty"`
	Failures         []*CheckResult `json:"failures"`
	Truncated        bool           `json:"truncated"`
}

// ResultAggregator reduces check results to a ValidationReport.
type ResultAggregator struct {
	limit int
}

// NewResultAggregator keeps at most limit failures per report; a non-positive
// limit selects DefaultReportLimit.
func NewResultAggregator(limit int) *ResultAggregator {
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	return &ResultAggregator{limit: limit}
}

func (a *ResultAggregator) Limit() int {
	return a.limit
}

// Aggregate counts results and keeps failures in the order they were evaluated.
func (a *ResultAggregator) Aggregate(results []*CheckResult) *ValidationReport {
	report := &ValidationReport{
		TotalChecks: len(results),
		Failures:    []*CheckResult{},
	}

	for _, res := range results {
		if res == nil {
			res = &CheckResult{EvaluationError: &EvaluationError{Reason: "check produced no result"}}
		}
		if res.Success {
			report.SuccessfulChecks++
			continue
		}
		report.FailedChecks++
		if len(report.Failures) < a.limit {
			report.Failures = append(report.Failures, res)
		} else {
			report.Truncated = true
		}
	}

	if report.TotalChecks == 0 {
		report.NoChecks = true
		report.SuccessRate = 1
	} else {
		report.SuccessRate = float64(report.SuccessfulChecks) / float64(report.TotalChecks)
	}
	report.OverallSuccess = report.SuccessfulChecks == report.TotalChecks

	return report
}

// LogReport writes the human readable summary of a report: a single pass/fail
// line and, on failure, the itemized violations kept in the report.
func LogReport(logger *slog.Logger, report *ValidationReport) {
	if logger == nil || report == nil {
		return
	}

	if report.OverallSuccess {
		logger.Info("data validation passed",
			"total_checks", report.TotalChecks,
			"successful_checks", report.SuccessfulChecks,
			"success_rate", fmt.Sprintf("%.2f%%", report.SuccessRate*100),
			"no_checks", report.NoChecks)
		return
	}

	logger.Error("data validation failed",
		"total_checks", report.TotalChecks,
		"failed_checks", report.FailedChecks,
		"success_rate", fmt.Sprintf("%.2f%%", report.SuccessRate*100))

	for idx, failure := range report.Failures {
		attrs := []any{
			"index", idx + 1,
			"rule", failure.Rule,
			"check", failure.Check,
			"column", columnOrNA(failure.Column),
			"unexpected_count", failure.UnexpectedCount,
		}
		if failure.ObservedValue != nil {
			attrs = append(attrs, "observed", failure.ObservedValue)
		}
		if len(failure.UnexpectedValues) > 0 {
			attrs = append(attrs, "unexpected_values", failure.UnexpectedValues)
		}
		if failure.EvaluationError != nil {
			attrs = append(attrs, "evaluation_error", failure.EvaluationError.Reason)
		}
		logger.Error("failed check", attrs...)
	}

	if report.Truncated {
		logger.Error(fmt.Sprintf("... and %d more failures", report.FailedChecks-len(report.Failures)))
	}
}

func columnOrNA(column string) string {
	if column == "" {
		return "N/A"
	}
	return column
}
