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
	"regexp"
	"strconv"
	"strings"
)

type CheckScope string

const (
	ScopeSchema CheckScope = "schema"
	ScopeTable  CheckScope = "table"
	ScopeColumn CheckScope = "column"
)

type BetweenRange struct {
	Min interface{}
	Max interface{}
}

// CheckExpression is the parsed form of a check line such as
// "range(tenure) between 0 and 72" or "column_count == 21".
type CheckExpression struct {
	FunctionName       string
	FunctionParameters []string
	Scope              CheckScope
	Operator           string
	ThresholdValue     interface{}
}

var (
	betweenRegex      = regexp.MustCompile(`^(\w+)(?:\((.*?)\))?\s+between\s+(.+)\s+and\s+(.+)$`)
	operatorRegex     = regexp.MustCompile(`^(\w+)(?:\((.*?)\))?\s*([<>=!]+)\s*(.+)$`)
	functionOnlyRegex = regexp.MustCompile(`^(\w+)(?:\((.*?)\))?$`)

	ruleKindByFunction = map[string]RuleKind{
		"row_count":      RuleRowCountBound,
		"column_count":   RuleColumnCountBound,
		"expect_columns": RuleColumnExists,
		"column_exists":  RuleColumnExists,
		"not_null":       RuleColumnNotNull,
		"value_set":      RuleValueSet,
		"in_set":         RuleValueSet,
		"range":          RuleNumericRange,
		"type":           RuleColumnType,
		"unique":         RuleUnique,
		"uniqueness":     RuleUnique,
		"expression":     RuleColumnExpression,
	}
)

func ParseCheckExpression(expression string) (*CheckExpression, error) {
	expression = strings.TrimSpace(expression)

	if expression == "" {
		return nil, fmt.Errorf("empty expression")
	}

	check := &CheckExpression{
		FunctionParameters: []string{},
	}

	if matches := betweenRegex.FindStringSubmatch(expression); matches != nil {
		check.FunctionName = matches[1]
		check.Operator = "between"

		if matches[2] != "" {
			check.FunctionParameters = parseParameters(matches[2])
		}

		minVal, err := parseValue(strings.TrimSpace(matches[3]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse min value: %v", err)
		}

		maxVal, err := parseValue(strings.TrimSpace(matches[4]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse max value: %v", err)
		}

		check.ThresholdValue = BetweenRange{Min: minVal, Max: maxVal}

	} else if matches := operatorRegex.FindStringSubmatch(expression); matches != nil {
		check.FunctionName = matches[1]
		check.Operator = matches[3]

		if matches[2] != "" {
			check.FunctionParameters = parseParameters(matches[2])
		}

		val, err := parseValue(strings.TrimSpace(matches[4]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse threshold value: %v", err)
		}
		check.ThresholdValue = val

	} else if matches := functionOnlyRegex.FindStringSubmatch(expression); matches != nil {
		check.FunctionName = matches[1]
		check.Operator = ""

		if matches[2] != "" {
			check.FunctionParameters = parseParameters(matches[2])
		}

	} else {
		return nil, fmt.Errorf("invalid expression format: %s", expression)
	}

	kind, ok := ruleKindByFunction[check.FunctionName]
	if !ok {
		return nil, fmt.Errorf("unknown check function: %s", check.FunctionName)
	}
	check.Scope = inferScope(kind)

	return check, nil
}

// RuleKind returns the rule variant the parsed function maps to.
func (c *CheckExpression) RuleKind() RuleKind {
	return ruleKindByFunction[c.FunctionName]
}

// RuleConfig converts the parsed expression into rule parameters. Parameters
// that cannot be expressed inline (value sets, CEL expressions) are supplied
// by the caller through cfg.
func (c *CheckExpression) RuleConfig(cfg RuleConfig) (RuleConfig, error) {
	kind := c.RuleKind()
	if !kind.TableScoped() {
		cfg.Columns = append(append([]string{}, c.FunctionParameters...), cfg.Columns...)
	}

	switch kind {
	case RuleRowCountBound, RuleNumericRange:
		if err := c.applyBounds(&cfg); err != nil {
			return cfg, err
		}

	case RuleColumnCountBound:
		if c.Operator != "==" {
			return cfg, fmt.Errorf("column_count supports only the == operator, got %q", c.Operator)
		}
		count, ok := c.ThresholdValue.(int)
		if !ok {
			return cfg, fmt.Errorf("column_count expects an integer, got %v", c.ThresholdValue)
		}
		cfg.ExpectedCount = count

	case RuleColumnType:
		if c.Operator != "==" {
			return cfg, fmt.Errorf("type supports only the == operator, got %q", c.Operator)
		}
		dtype, err := ParseDType(fmt.Sprint(c.ThresholdValue))
		if err != nil {
			return cfg, err
		}
		cfg.ExpectedType = dtype

	default:
		if c.Operator != "" {
			return cfg, fmt.Errorf("%s does not take an operator", c.FunctionName)
		}
	}

	return cfg, nil
}

func (c *CheckExpression) applyBounds(cfg *RuleConfig) error {
	switch c.Operator {
	case "between":
		rng, ok := c.ThresholdValue.(BetweenRange)
		if !ok {
			return fmt.Errorf("between requires a range, got %v", c.ThresholdValue)
		}
		lo, err := toBound(rng.Min)
		if err != nil {
			return err
		}
		hi, err := toBound(rng.Max)
		if err != nil {
			return err
		}
		cfg.Min, cfg.Max = &lo, &hi
	case ">=", "<=", "==":
		v, err := toBound(c.ThresholdValue)
		if err != nil {
			return err
		}
		if c.Operator != "<=" {
			cfg.Min = Bound(v)
		}
		if c.Operator != ">=" {
			cfg.Max = Bound(v)
		}
	default:
		return fmt.Errorf("%s supports between, >=, <= and == operators, got %q", c.FunctionName, c.Operator)
	}
	return nil
}

func toBound(v interface{}) (float64, error) {
	f, err := ToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("bound %v is not numeric", v)
	}
	return f, nil
}

func parseParameters(paramStr string) []string {
	if paramStr == "" {
		return []string{}
	}

	params := strings.Split(paramStr, ",")
	for i, param := range params {
		params[i] = strings.TrimSpace(param)
	}

	return params
}

func parseValue(valueStr string) (interface{}, error) {
	valueStr = strings.TrimSpace(valueStr)

	if valueStr == "" {
		return nil, fmt.Errorf("empty value")
	}

	if strings.Contains(valueStr, ".") {
		if floatVal, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return floatVal, nil
		}
	}

	if intVal, err := strconv.Atoi(valueStr); err == nil {
		return intVal, nil
	}

	return valueStr, nil
}

func inferScope(kind RuleKind) CheckScope {
	switch kind {
	case RuleRowCountBound:
		return ScopeTable
	case RuleColumnCountBound, RuleColumnExists:
		return ScopeSchema
	}
	return ScopeColumn
}
