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
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFileConfig is the root of a rules file.
type RulesFileConfig struct {
	Version string           `yaml:"version"`
	Rules   []ValidationRule `yaml:"rules"`
}

// ValidationRule groups the checks declared for one dataset.
type ValidationRule struct {
	Dataset string `yaml:"dataset"`
	// Where filters the rows of warehouse targets.
	Where  string             `yaml:"where,omitempty"`
	Checks []DataQualityCheck `yaml:"checks"`
}

// DataQualityCheck is one entry of a rules file: either a bare expression or
// an expression key mapped to its details.
type DataQualityCheck struct {
	Expression   string           `yaml:"-"`
	Description  string           `yaml:"desc,omitempty"`
	Columns      []string         `yaml:"columns,omitempty"`
	Values       []interface{}    `yaml:"values,omitempty"`
	Expr         string           `yaml:"expr,omitempty"`
	OnNonNumeric NonNumericPolicy `yaml:"on_non_numeric,omitempty"`
	ParsedCheck  *CheckExpression `yaml:"-"`
}

// checkDetailKeys lists the fields a check mapping may carry. Node.Decode does
// not honour the decoder's KnownFields setting.
var checkDetailKeys = map[string]bool{
	"desc":           true,
	"columns":        true,
	"values":         true,
	"expr":           true,
	"on_non_numeric": true,
}

func (c *DataQualityCheck) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		c.Expression = node.Value

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: check must have exactly one expression key", node.Line)
		}
		c.Expression = node.Content[0].Value

		value := node.Content[1]
		if value.Kind == yaml.MappingNode {
			for i := 0; i < len(value.Content); i += 2 {
				key := value.Content[i]
				if !checkDetailKeys[key.Value] {
					return fmt.Errorf("line %d: unknown field %q in check %q", key.Line, key.Value, c.Expression)
				}
			}

			var details struct {
				Desc         string           `yaml:"desc,omitempty"`
				Columns      []string         `yaml:"columns,omitempty"`
				Values       []interface{}    `yaml:"values,omitempty"`
				Expr         string           `yaml:"expr,omitempty"`
				OnNonNumeric NonNumericPolicy `yaml:"on_non_numeric,omitempty"`
			}
			if err := value.Decode(&details); err != nil {
				return err
			}
			c.Description = details.Desc
			c.Columns = details.Columns
			c.Values = details.Values
			c.Expr = details.Expr
			c.OnNonNumeric = details.OnNonNumeric
		} else if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
			return fmt.Errorf("line %d: details of check %q must be a mapping", value.Line, c.Expression)
		}

	default:
		return fmt.Errorf("line %d: unsupported check format", node.Line)
	}

	parsedCheck, err := ParseCheckExpression(c.Expression)
	if err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("line %d: %v", node.Line, err)}
	}
	c.ParsedCheck = parsedCheck

	return nil
}

// Rule converts the check into a validated rule.
func (c *DataQualityCheck) Rule() (*Rule, error) {
	if c.ParsedCheck == nil {
		parsed, err := ParseCheckExpression(c.Expression)
		if err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		c.ParsedCheck = parsed
	}

	kind := c.ParsedCheck.RuleKind()
	cfg, err := c.ParsedCheck.RuleConfig(RuleConfig{
		Columns:       c.Columns,
		AllowedValues: c.Values,
		Expression:    c.Expr,
		OnNonNumeric:  c.OnNonNumeric,
		Description:   c.Description,
	})
	if err != nil {
		return nil, &ConfigurationError{Rule: kind, Reason: fmt.Sprintf("%s: %v", c.Expression, err)}
	}

	return NewRule(kind, cfg)
}

// SuiteBuilder returns a builder holding the rules of all checks in file order.
func (v *ValidationRule) SuiteBuilder() *SuiteBuilder {
	builder := NewSuiteBuilder()
	for i := range v.Checks {
		rule, err := v.Checks[i].Rule()
		if err != nil {
			builder.errs = append(builder.errs, err)
			continue
		}
		builder.Add(rule)
	}
	return builder
}

// FindRule returns the rule declared for dataset.
func (c *RulesFileConfig) FindRule(dataset string) (*ValidationRule, error) {
	for i := range c.Rules {
		if c.Rules[i].Dataset == dataset {
			return &c.Rules[i], nil
		}
	}
	return nil, fmt.Errorf("no rules declared for dataset %q", dataset)
}

func ParseRulesFileConfig(data []byte) (*RulesFileConfig, error) {
	var cfg RulesFileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		return nil, &ConfigurationError{Reason: fmt.Sprintf("failed to decode rules: %v", err)}
	}

	return &cfg, nil
}

func LoadRulesFileConfig(fileName string) (*RulesFileConfig, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", fileName, err)
	}

	return ParseRulesFileConfig(data)
}
