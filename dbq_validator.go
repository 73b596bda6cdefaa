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
	"fmt"
	"io"
	"log/slog"
	"time"
)

// RunState is the lifecycle state of a single validation run.
type RunState int

const (
	RunIdle RunState = iota
	RunBuilding
	RunEvaluating
	RunAggregated
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunBuilding:
		return "building"
	case RunEvaluating:
		return "evaluating"
	case RunAggregated:
		return "aggregated"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

var runTransitions = map[RunState][]RunState{
	RunIdle:       {RunBuilding},
	RunBuilding:   {RunEvaluating, RunIdle},
	RunEvaluating: {RunAggregated, RunIdle},
	RunAggregated: {RunIdle},
}

// ValidatorConfig is the configuration snapshot a validator is created with.
type ValidatorConfig struct {
	// ReportLimit caps the failures kept in a report. Defaults to DefaultReportLimit.
	ReportLimit int
	// Workers is the number of checks evaluated concurrently. Defaults to 1.
	Workers int
	// CheckTimeout bounds a single check; zero disables the budget.
	CheckTimeout time.Duration
}

// DbqDataValidator is the interface that wraps the validation entry points.
type DbqDataValidator interface {
	// Validate builds a suite from builder against target, evaluates it and
	// returns the aggregated report.
	Validate(ctx context.Context, target ValidationTarget, builder *SuiteBuilder) (*ValidationReport, error)

	// ValidateSuite evaluates an already built suite.
	ValidateSuite(ctx context.Context, suite *Suite) (*ValidationReport, error)
}

func NewDbqDataValidator(logger *slog.Logger, cfg ValidatorConfig) DbqDataValidator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &DbqDataValidatorImpl{
		logger:     logger,
		evaluator:  NewEvaluator(logger, WithWorkers(cfg.Workers), WithCheckTimeout(cfg.CheckTimeout)),
		aggregator: NewResultAggregator(cfg.ReportLimit),
	}
}

type DbqDataValidatorImpl struct {
	logger     *slog.Logger
	evaluator  *Evaluator
	aggregator *ResultAggregator
}

func (d *DbqDataValidatorImpl) Validate(ctx context.Context, target ValidationTarget, builder *SuiteBuilder) (*ValidationReport, error) {
	if builder == nil {
		return nil, fmt.Errorf("suite builder is not provided")
	}

	run := &validationRun{logger: d.logger}
	if err := run.advance(RunBuilding); err != nil {
		return nil, err
	}

	suite, err := builder.Build(target)
	if err != nil {
		_ = run.advance(RunIdle)
		return nil, fmt.Errorf("failed to build validation suite: %w", err)
	}

	d.logger.Debug("validation suite built", "rules", builder.Len(), "checks", suite.Len())
	return d.evaluate(ctx, run, suite)
}

func (d *DbqDataValidatorImpl) ValidateSuite(ctx context.Context, suite *Suite) (*ValidationReport, error) {
	if suite == nil {
		return nil, fmt.Errorf("suite is not provided")
	}

	run := &validationRun{logger: d.logger}
	if err := run.advance(RunBuilding); err != nil {
		return nil, err
	}
	return d.evaluate(ctx, run, suite)
}

func (d *DbqDataValidatorImpl) evaluate(ctx context.Context, run *validationRun, suite *Suite) (*ValidationReport, error) {
	if err := run.advance(RunEvaluating); err != nil {
		return nil, err
	}

	startTime := time.Now()
	results, err := d.evaluator.Evaluate(ctx, suite)
	if err != nil {
		_ = run.advance(RunIdle)
		return nil, fmt.Errorf("validation run aborted: %w", err)
	}

	if err := run.advance(RunAggregated); err != nil {
		return nil, err
	}
	report := d.aggregator.Aggregate(results)

	d.logger.Info("validation run completed",
		"overall_success", report.OverallSuccess,
		"total_checks", report.TotalChecks,
		"successful_checks", report.SuccessfulChecks,
		"duration_ms", time.Since(startTime).Milliseconds())

	if err := run.advance(RunIdle); err != nil {
		return nil, err
	}
	return report, nil
}

type validationRun struct {
	logger *slog.Logger
	state  RunState
}

func (r *validationRun) advance(next RunState) error {
	for _, allowed := range runTransitions[r.state] {
		if allowed == next {
			r.logger.Debug("validation run state changed", "from", r.state.String(), "to", next.String())
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid validation run transition from %s to %s", r.state, next)
}
