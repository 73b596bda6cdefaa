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
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
)

// RuleKind identifies a rule variant. The set of kinds is closed.
type RuleKind string

const (
	RuleColumnExists     RuleKind = "column_exists"
	RuleColumnNotNull    RuleKind = "not_null"
	RuleValueSet         RuleKind = "value_set"
	RuleNumericRange     RuleKind = "range"
	RuleColumnType       RuleKind = "type"
	RuleUnique           RuleKind = "unique"
	RuleRowCountBound    RuleKind = "row_count"
	RuleColumnCountBound RuleKind = "column_count"
	RuleColumnExpression RuleKind = "expression"
)

// TableScoped reports whether the kind checks the table as a whole and
// therefore produces exactly one check.
func (k RuleKind) TableScoped() bool {
	return k == RuleRowCountBound || k == RuleColumnCountBound
}

func (k RuleKind) known() bool {
	switch k {
	case RuleColumnExists, RuleColumnNotNull, RuleValueSet, RuleNumericRange, RuleColumnType,
		RuleUnique, RuleRowCountBound, RuleColumnCountBound, RuleColumnExpression:
		return true
	}
	return false
}

// NonNumericPolicy decides how a range check treats values that cannot be read as numbers.
type NonNumericPolicy string

const (
	// NonNumericFail counts non-numeric values as unexpected.
	NonNumericFail NonNumericPolicy = "fail"
	// NonNumericIgnore treats non-numeric values like nulls and skips them.
	NonNumericIgnore NonNumericPolicy = "ignore"
)

// RuleConfig holds the parameters of every rule variant. Each kind reads only
// the fields it needs.
type RuleConfig struct {
	Columns       []string         `json:"columns,omitempty"`
	AllowedValues []any            `json:"allowed_values,omitempty"`
	Min           *float64         `json:"min,omitempty"`
	Max           *float64         `json:"max,omitempty"`
	ExpectedType  DType            `json:"expected_type,omitempty"`
	ExpectedCount int              `json:"expected_count,omitempty"`
	Expression    string           `json:"expression,omitempty"`
	OnNonNumeric  NonNumericPolicy `json:"on_non_numeric,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// Bound is a helper for building Min/Max config values.
func Bound(v float64) *float64 {
	return &v
}

// Rule is a validated, immutable rule ready to be materialized into checks.
type Rule struct {
	kind    RuleKind
	cfg     RuleConfig
	allowed map[string]struct{}
	program cel.Program
}

// NewRule validates cfg for kind and returns the rule. Malformed configurations
// yield a *ConfigurationError.
func NewRule(kind RuleKind, cfg RuleConfig) (*Rule, error) {
	if !kind.known() {
		return nil, &ConfigurationError{Rule: kind, Reason: "unknown rule kind"}
	}

	cfg = cloneConfig(cfg)
	r := &Rule{kind: kind, cfg: cfg}

	if kind.TableScoped() {
		if len(cfg.Columns) > 0 {
			return nil, &ConfigurationError{Rule: kind, Reason: "table level rule does not accept columns"}
		}
	} else {
		if len(cfg.Columns) == 0 {
			return nil, &ConfigurationError{Rule: kind, Reason: "column list is empty"}
		}
		for _, col := range cfg.Columns {
			if strings.TrimSpace(col) == "" {
				return nil, &ConfigurationError{Rule: kind, Reason: "column name is blank"}
			}
		}
	}

	switch kind {
	case RuleValueSet:
		if len(cfg.AllowedValues) == 0 {
			return nil, &ConfigurationError{Rule: kind, Column: cfg.Columns[0], Reason: "allowed value set is empty"}
		}
		r.allowed = make(map[string]struct{}, len(cfg.AllowedValues))
		for _, v := range cfg.AllowedValues {
			r.allowed[ValueKey(v)] = struct{}{}
		}

	case RuleNumericRange:
		if err := validateBounds(kind, cfg); err != nil {
			return nil, err
		}
		switch cfg.OnNonNumeric {
		case "":
			r.cfg.OnNonNumeric = NonNumericFail
		case NonNumericFail, NonNumericIgnore:
		default:
			return nil, &ConfigurationError{Rule: kind, Column: cfg.Columns[0],
				Reason: fmt.Sprintf("unknown non-numeric policy %q", cfg.OnNonNumeric)}
		}

	case RuleRowCountBound:
		if err := validateBounds(kind, cfg); err != nil {
			return nil, err
		}
		if cfg.Min != nil && *cfg.Min < 0 {
			return nil, &ConfigurationError{Rule: kind, Reason: "minimum row count is negative"}
		}

	case RuleColumnType:
		if !knownDTypes[cfg.ExpectedType] {
			return nil, &ConfigurationError{Rule: kind, Column: cfg.Columns[0],
				Reason: fmt.Sprintf("unknown type tag %q", cfg.ExpectedType)}
		}

	case RuleColumnCountBound:
		if cfg.ExpectedCount < 0 {
			return nil, &ConfigurationError{Rule: kind, Reason: "expected column count is negative"}
		}

	case RuleColumnExpression:
		program, err := compileValueExpression(cfg.Expression)
		if err != nil {
			return nil, &ConfigurationError{Rule: kind, Column: cfg.Columns[0], Reason: err.Error()}
		}
		r.program = program
	}

	return r, nil
}

// MustNewRule is like NewRule but panics on configuration errors.
func MustNewRule(kind RuleKind, cfg RuleConfig) *Rule {
	r, err := NewRule(kind, cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func validateBounds(kind RuleKind, cfg RuleConfig) error {
	var column string
	if len(cfg.Columns) > 0 {
		column = cfg.Columns[0]
	}
	if cfg.Min == nil && cfg.Max == nil {
		return &ConfigurationError{Rule: kind, Column: column, Reason: "at least one of min or max is required"}
	}
	if (cfg.Min != nil && math.IsNaN(*cfg.Min)) || (cfg.Max != nil && math.IsNaN(*cfg.Max)) {
		return &ConfigurationError{Rule: kind, Column: column, Reason: "bound is NaN"}
	}
	if cfg.Min != nil && cfg.Max != nil && *cfg.Min > *cfg.Max {
		return &ConfigurationError{Rule: kind, Column: column,
			Reason: fmt.Sprintf("inverted range: min %v > max %v", *cfg.Min, *cfg.Max)}
	}
	return nil
}

func cloneConfig(cfg RuleConfig) RuleConfig {
	cfg.Columns = slices.Clone(cfg.Columns)
	cfg.AllowedValues = slices.Clone(cfg.AllowedValues)
	if cfg.Min != nil {
		cfg.Min = Bound(*cfg.Min)
	}
	if cfg.Max != nil {
		cfg.Max = Bound(*cfg.Max)
	}
	return cfg
}

func (r *Rule) Kind() RuleKind {
	return r.kind
}

// Config returns a copy of the rule configuration.
func (r *Rule) Config() RuleConfig {
	return cloneConfig(r.cfg)
}

// Checks materializes the rule into its checks: one per column, or a single
// check for table level rules.
func (r *Rule) Checks() []Check {
	if r.kind.TableScoped() {
		return []Check{{Rule: r}}
	}
	checks := make([]Check, 0, len(r.cfg.Columns))
	for _, col := range r.cfg.Columns {
		checks = append(checks, Check{Rule: r, Column: col})
	}
	return checks
}

// Label renders the check expression of the rule applied to column, in the
// same syntax the rules file uses.
func (r *Rule) Label(column string) string {
	switch r.kind {
	case RuleRowCountBound:
		return "row_count" + formatBounds(r.cfg.Min, r.cfg.Max)
	case RuleColumnCountBound:
		return fmt.Sprintf("column_count == %d", r.cfg.ExpectedCount)
	case RuleNumericRange:
		return fmt.Sprintf("range(%s)%s", column, formatBounds(r.cfg.Min, r.cfg.Max))
	case RuleColumnType:
		return fmt.Sprintf("type(%s) == %s", column, r.cfg.ExpectedType)
	case RuleColumnExists:
		return fmt.Sprintf("expect_columns(%s)", column)
	default:
		return fmt.Sprintf("%s(%s)", r.kind, column)
	}
}

func formatBounds(lo, hi *float64) string {
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf(" between %s and %s", format(*lo), format(*hi))
	case lo != nil:
		return " >= " + format(*lo)
	case hi != nil:
		return " <= " + format(*hi)
	}
	return ""
}

// sameParameters reports whether two rules of the same kind check the same
// thing, ignoring columns and descriptions.
func (r *Rule) sameParameters(other *Rule) bool {
	if r.kind != other.kind {
		return false
	}
	switch r.kind {
	case RuleNumericRange:
		return equalBound(r.cfg.Min, other.cfg.Min) && equalBound(r.cfg.Max, other.cfg.Max) &&
			r.cfg.OnNonNumeric == other.cfg.OnNonNumeric
	case RuleRowCountBound:
		return equalBound(r.cfg.Min, other.cfg.Min) && equalBound(r.cfg.Max, other.cfg.Max)
	case RuleColumnType:
		return r.cfg.ExpectedType == other.cfg.ExpectedType
	case RuleColumnCountBound:
		return r.cfg.ExpectedCount == other.cfg.ExpectedCount
	case RuleValueSet:
		if len(r.allowed) != len(other.allowed) {
			return false
		}
		for key := range r.allowed {
			if _, ok := other.allowed[key]; !ok {
				return false
			}
		}
		return true
	}
	// existence, nullability, uniqueness and expressions carry no conflicting parameters
	return true
}

func equalBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
