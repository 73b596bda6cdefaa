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
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

func telcoTarget() *mockTarget {
	return newMockTarget([]mockColumn{
		{name: "customerID", values: []any{"7590-VHVEG", "5575-GNVDE", "3668-QPYBK", "7795-CFOCW"}},
		{name: "gender", values: []any{"Female", "Male", "Male", "Male"}},
		{name: "SeniorCitizen", values: []any{int64(0), int64(0), int64(0), int64(1)}},
		{name: "tenure", values: []any{int64(1), int64(34), int64(2), int64(45)}},
		{name: "TotalCharges", values: []any{29.85, 1889.5, 108.15, nil}},
	})
}

func telcoBuilder() *SuiteBuilder {
	return NewSuiteBuilder().
		AddRule(RuleRowCountBound, RuleConfig{Min: Bound(1), Max: Bound(10000)}).
		AddRule(RuleColumnCountBound, RuleConfig{ExpectedCount: 5}).
		AddRule(RuleColumnExists, RuleConfig{Columns: []string{"customerID", "gender"}}).
		AddRule(RuleColumnNotNull, RuleConfig{Columns: []string{"customerID", "gender", "tenure"}}).
		AddRule(RuleValueSet, RuleConfig{Columns: []string{"gender"}, AllowedValues: []any{"Male", "Female"}}).
		AddRule(RuleValueSet, RuleConfig{Columns: []string{"SeniorCitizen"}, AllowedValues: []any{0, 1}}).
		AddRule(RuleNumericRange, RuleConfig{Columns: []string{"tenure"}, Min: Bound(0), Max: Bound(72)}).
		AddRule(RuleNumericRange, RuleConfig{Columns: []string{"TotalCharges"}, Min: Bound(0), Max: Bound(10000)}).
		AddRule(RuleColumnType, RuleConfig{Columns: []string{"TotalCharges"}, ExpectedType: DTypeFloat}).
		AddRule(RuleUnique, RuleConfig{Columns: []string{"customerID"}})
}

func TestDbqDataValidatorImpl_Validate(t *testing.T) {
	validator := NewDbqDataValidator(slog.New(slog.NewTextHandler(io.Discard, nil)), ValidatorConfig{})

	report, err := validator.Validate(context.Background(), telcoTarget(), telcoBuilder())
	if err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if !report.OverallSuccess {
		t.Errorf("expected validation to pass, failures: %+v", report.Failures)
	}
	if report.TotalChecks != 13 || report.SuccessfulChecks != 13 {
		t.Errorf("TotalChecks = %d, SuccessfulChecks = %d, expected 13/13", report.TotalChecks, report.SuccessfulChecks)
	}
}

func TestDbqDataValidatorImpl_ValidateReportsFailures(t *testing.T) {
	target := telcoTarget()
	target.columns["tenure"] = mockColumn{name: "tenure", values: []any{int64(-1), int64(0), int64(72), int64(73)}, dtype: DTypeInt}

	builder := telcoBuilder().
		AddRule(RuleColumnNotNull, RuleConfig{Columns: []string{"Churn"}})

	report, err := NewDbqDataValidator(nil, ValidatorConfig{ReportLimit: 1}).Validate(context.Background(), target, builder)
	if err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if report.OverallSuccess {
		t.Fatal("expected validation to fail")
	}
	if report.FailedChecks != 2 || report.TotalChecks != 14 {
		t.Errorf("FailedChecks = %d, TotalChecks = %d, expected 2 of 14", report.FailedChecks, report.TotalChecks)
	}
	if len(report.Failures) != 1 || !report.Truncated {
		t.Fatalf("expected a single kept failure and truncation, got %d, truncated=%v", len(report.Failures), report.Truncated)
	}
	if report.Failures[0].Check != "range(tenure) between 0 and 72" || report.Failures[0].UnexpectedCount != 2 {
		t.Errorf("first failure = %+v", report.Failures[0])
	}
}

func TestDbqDataValidatorImpl_ValidateIsRepeatable(t *testing.T) {
	validator := NewDbqDataValidator(nil, ValidatorConfig{Workers: 3})
	target := telcoTarget()
	builder := telcoBuilder().AddRule(RuleNumericRange, RuleConfig{Columns: []string{"SeniorCitizen"}, Max: Bound(0)})

	first, err := validator.Validate(context.Background(), target, builder)
	if err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	second, err := validator.Validate(context.Background(), target, builder)
	if err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reports differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestDbqDataValidatorImpl_ValidateConcurrently(t *testing.T) {
	validator := NewDbqDataValidator(nil, ValidatorConfig{Workers: 2})

	var wg sync.WaitGroup
	reports := make([]*ValidationReport, 8)
	errs := make([]error, 8)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = validator.Validate(context.Background(), telcoTarget(), telcoBuilder())
		}()
	}
	wg.Wait()

	for i := range reports {
		if errs[i] != nil {
			t.Fatalf("run %d: unexpected error: %v", i, errs[i])
		}
		if !reflect.DeepEqual(reports[i], reports[0]) {
			t.Errorf("run %d produced a different report", i)
		}
	}
}

func TestDbqDataValidatorImpl_ValidateErrors(t *testing.T) {
	validator := NewDbqDataValidator(nil, ValidatorConfig{})

	_, err := validator.Validate(context.Background(), telcoTarget(), nil)
	if err == nil {
		t.Error("Validate() with nil builder expected error")
	}

	builder := NewSuiteBuilder().AddRule(RuleNumericRange, RuleConfig{Columns: []string{"tenure"}, Min: Bound(72), Max: Bound(0)})
	_, err = validator.Validate(context.Background(), telcoTarget(), builder)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Validate() error = %v, expected *ConfigurationError", err)
	}

	target := telcoTarget()
	target.accessErr = errors.New("warehouse unavailable")
	_, err = validator.Validate(context.Background(), target, telcoBuilder())
	if !IsTargetAccessError(err) {
		t.Errorf("Validate() error = %v, expected target access error", err)
	}

	if _, err := validator.ValidateSuite(context.Background(), nil); err == nil {
		t.Error("ValidateSuite(nil) expected error")
	}
}

func TestDbqDataValidatorImpl_ValidateSuite(t *testing.T) {
	target := telcoTarget()
	suite, err := telcoBuilder().Build(target)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	report, err := NewDbqDataValidator(nil, ValidatorConfig{}).ValidateSuite(context.Background(), suite)
	if err != nil {
		t.Fatalf("ValidateSuite() unexpected error: %v", err)
	}
	if report.TotalChecks != suite.Len() {
		t.Errorf("TotalChecks = %d, expected %d", report.TotalChecks, suite.Len())
	}
}

func TestValidationRun_Transitions(t *testing.T) {
	run := &validationRun{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	steps := []struct {
		next    RunState
		wantErr bool
	}{
		{RunEvaluating, true},
		{RunBuilding, false},
		{RunAggregated, true},
		{RunEvaluating, false},
		{RunBuilding, true},
		{RunAggregated, false},
		{RunEvaluating, true},
		{RunIdle, false},
	}

	for i, step := range steps {
		err := run.advance(step.next)
		if (err != nil) != step.wantErr {
			t.Errorf("step %d: advance(%s) error = %v, wantErr %v", i, step.next, err, step.wantErr)
		}
	}
	if run.state != RunIdle {
		t.Errorf("final state = %s, expected idle", run.state)
	}
	if RunState(42).String() != "RunState(42)" {
		t.Errorf("unexpected String() for unknown state: %s", RunState(42))
	}
}
