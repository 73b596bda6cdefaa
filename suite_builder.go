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
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

// SuiteBuilder accumulates rules in declaration order and composes them into
// a Suite. Configuration errors are collected while adding and reported by Build.
type SuiteBuilder struct {
	rules []*Rule
	errs  []error
}

func NewSuiteBuilder() *SuiteBuilder {
	return &SuiteBuilder{}
}

// AddRule constructs a rule of the given kind and appends it to the builder.
func (b *SuiteBuilder) AddRule(kind RuleKind, cfg RuleConfig) *SuiteBuilder {
	rule, err := NewRule(kind, cfg)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.rules = append(b.rules, rule)
	return b
}

// Add appends an already constructed rule.
func (b *SuiteBuilder) Add(rule *Rule) *SuiteBuilder {
	if rule == nil {
		b.errs = append(b.errs, &ConfigurationError{Reason: "nil rule"})
		return b
	}
	b.rules = append(b.rules, rule)
	return b
}

// Len returns the number of valid rules added so far.
func (b *SuiteBuilder) Len() int {
	return len(b.rules)
}

// Err returns the configuration errors collected so far, joined.
func (b *SuiteBuilder) Err() error {
	return errors.Join(b.errs...)
}

// Build materializes the rules into checks bound to target. It does not
// evaluate anything and leaves the builder unchanged, so it can be called
// repeatedly with the same outcome.
func (b *SuiteBuilder) Build(target ValidationTarget) (*Suite, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("validation target is nil")
	}

	type ruleKey struct {
		kind   RuleKind
		column string
	}
	firstSeen := make(map[ruleKey]*Rule)

	var checks []Check
	for _, rule := range b.rules {
		for _, check := range rule.Checks() {
			key := ruleKey{kind: rule.kind, column: check.Column}
			if prev, ok := firstSeen[key]; ok {
				if !prev.sameParameters(rule) {
					return nil, &ConfigurationError{
						Rule:   rule.kind,
						Column: check.Column,
						Reason: fmt.Sprintf("conflicts with earlier rule %q", prev.Label(check.Column)),
					}
				}
			} else {
				firstSeen[key] = rule
			}
			checks = append(checks, check)
		}
	}

	return &Suite{
		target: target,
		rules:  slices.Clone(b.rules),
		checks: checks,
	}, nil
}

// Suite is an ordered collection of materialized checks bound to one target.
type Suite struct {
	target  ValidationTarget
	rules   []*Rule
	checks  []Check
	running atomic.Bool
}

func (s *Suite) Target() ValidationTarget {
	return s.target
}

// Checks returns the checks in evaluation order.
func (s *Suite) Checks() []Check {
	return slices.Clone(s.checks)
}

// Rules returns the rules in declaration order.
func (s *Suite) Rules() []*Rule {
	return slices.Clone(s.rules)
}

func (s *Suite) Len() int {
	return len(s.checks)
}
