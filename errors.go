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
)

var (
	// ErrColumnNotFound is returned by targets when a referenced column does not exist.
	ErrColumnNotFound = errors.New("column not found")

	// ErrSuiteRunning is returned when a suite is evaluated while a previous evaluation is still in progress.
	ErrSuiteRunning = errors.New("suite evaluation already in progress")
)

// ConfigurationError reports a malformed rule configuration. It is raised while
// rules are constructed or composed into a suite and is always fatal to the build.
type ConfigurationError struct {
	Rule   RuleKind
	Column string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("invalid %s rule configuration for column %q: %s", e.Rule, e.Column, e.Reason)
	}
	return fmt.Sprintf("invalid %s rule configuration: %s", e.Rule, e.Reason)
}

// EvaluationError describes why a single check could not be evaluated.
// It never aborts a run; the evaluator stores it on the failing CheckResult.
type EvaluationError struct {
	Rule   RuleKind `json:"rule"`
	Column string   `json:"column,omitempty"`
	Reason string   `json:"reason"`
}

func (e *EvaluationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s check on column %q could not be evaluated: %s", e.Rule, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s check could not be evaluated: %s", e.Rule, e.Reason)
}

// TargetAccessError wraps a failure of the underlying data source. The engine
// cannot recover from it and propagates it to the caller.
type TargetAccessError struct {
	Op     string
	Column string
	Err    error
}

func (e *TargetAccessError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("target access failed (%s on %q): %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("target access failed (%s): %v", e.Op, e.Err)
}

func (e *TargetAccessError) Unwrap() error {
	return e.Err
}

// NewTargetAccessError wraps err for the given target operation.
func NewTargetAccessError(op string, column string, err error) error {
	if err == nil {
		return nil
	}
	return &TargetAccessError{Op: op, Column: column, Err: err}
}

// IsTargetAccessError reports whether err is or wraps a TargetAccessError.
func IsTargetAccessError(err error) bool {
	var accessErr *TargetAccessError
	return errors.As(err, &accessErr)
}
