package dbqprep

import (
	"errors"
	"reflect"
	"testing"
)

func TestSuiteBuilder_Build(t *testing.T) {
	target := newMockTarget(filledColumns(3))

	builder := NewSuiteBuilder().
		AddRule(RuleRowCountBound, RuleConfig{Min: Bound(1)}).
		AddRule(RuleColumnNotNull, RuleConfig{Columns: []string{"col_a", "col_b", "col_c"}}).
		AddRule(RuleNumericRange, RuleConfig{Columns: []string{"col_a", "col_b"}, Min: Bound(0)})

	suite, err := builder.Build(target)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	expected := []string{
		"row_count >= 1",
		"not_null(col_a)", "not_null(col_b)", "not_null(col_c)",
		"range(col_a) >= 0", "range(col_b) >= 0",
	}
	var labels []string
	for _, check := range suite.Checks() {
		labels = append(labels, check.Label())
	}
	if !reflect.DeepEqual(labels, expected) {
		t.Errorf("labels = %v, expected %v", labels, expected)
	}

	var perRule int
	for _, r := range suite.Rules() {
		perRule += len(r.Checks())
	}
	if suite.Len() != perRule {
		t.Errorf("suite.Len() = %d, expected sum of rule checks %d", suite.Len(), perRule)
	}
	if suite.Target() != ValidationTarget(target) {
		t.Error("suite is not bound to the target")
	}
	if target.valuesCalls.Load() != 0 {
		t.Error("Build() read values from the target")
	}

	again, err := builder.Build(target)
	if err != nil {
		t.Fatalf("second Build() unexpected error: %v", err)
	}
	if !reflect.DeepEqual(again.Checks(), suite.Checks()) {
		t.Error("Build() is not deterministic")
	}
	if builder.Len() != 3 {
		t.Errorf("builder.Len() = %d after Build, expected 3", builder.Len())
	}
}

func TestSuiteBuilder_IdenticalRepeatsAreKept(t *testing.T) {
	target := newMockTarget(filledColumns(1))

	suite, err := NewSuiteBuilder().
		AddRule(RuleNumericRange, RuleConfig{Columns: []string{"col_a"}, Min: Bound(0), Max: Bound(72)}).
		AddRule(RuleNumericRange, RuleConfig{Columns: []string{"col_a"}, Min: Bound(0), Max: Bound(72)}).
		AddRule(RuleColumnNotNull, RuleConfig{Columns: []string{"col_a"}}).
		AddRule(RuleColumnNotNull, RuleConfig{Columns: []string{"col_a"}}).
		Build(target)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if suite.Len() != 4 {
		t.Errorf("suite.Len() = %d, expected 4", suite.Len())
	}
}

func TestSuiteBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *SuiteBuilder
		target  ValidationTarget
		column  string
	}{
		{
			name: "conflicting ranges on the same column",
			builder: NewSuiteBuilder().
				AddRule(RuleNumericRange, RuleConfig{Columns: []string{"tenure"}, Min: Bound(0), Max: Bound(72)}).
				AddRule(RuleNumericRange, RuleConfig{Columns: []string{"MonthlyCharges", "tenure"}, Min: Bound(0), Max: Bound(100)}),
			target: newMockTarget(nil),
			column: "tenure",
		},
		{
			name: "conflicting types",
			builder: NewSuiteBuilder().
				AddRule(RuleColumnType, RuleConfig{Columns: []string{"TotalCharges"}, ExpectedType: DTypeFloat}).
				AddRule(RuleColumnType, RuleConfig{Columns: []string{"TotalCharges"}, ExpectedType: DTypeString}),
			target: newMockTarget(nil),
			column: "TotalCharges",
		},
		{
			name: "conflicting column counts",
			builder: NewSuiteBuilder().
				AddRule(RuleColumnCountBound, RuleConfig{ExpectedCount: 21}).
				AddRule(RuleColumnCountBound, RuleConfig{ExpectedCount: 20}),
			target: newMockTarget(nil),
		},
		{
			name:    "invalid rule",
			builder: NewSuiteBuilder().AddRule(RuleValueSet, RuleConfig{Columns: []string{"gender"}}),
			target:  newMockTarget(nil),
			column:  "gender",
		},
		{
			name:    "nil rule",
			builder: NewSuiteBuilder().Add(nil),
			target:  newMockTarget(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build(tt.target)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Build() error = %v, expected *ConfigurationError", err)
			}
			if cfgErr.Column != tt.column {
				t.Errorf("ConfigurationError.Column = %q, expected %q", cfgErr.Column, tt.column)
			}
		})
	}

	if _, err := NewSuiteBuilder().Build(nil); err == nil {
		t.Error("Build(nil) expected error")
	}
}

func TestSuiteBuilder_Empty(t *testing.T) {
	suite, err := NewSuiteBuilder().Build(newMockTarget(nil))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if suite.Len() != 0 {
		t.Errorf("suite.Len() = %d, expected 0", suite.Len())
	}
}
