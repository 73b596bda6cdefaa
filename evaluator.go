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

// Evaluator runs every check of a suite and collects one result per check.
// A failing or broken check never stops the remaining ones.
type Evaluator struct {
	logger       *slog.Logger
	workers      int
	checkTimeout time.Duration
}

type EvaluatorOption func(*Evaluator)

// WithWorkers evaluates up to n checks concurrently. Results keep declaration order.
func WithWorkers(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCheckTimeout bounds the wall-clock time of a single check. A check that
// exceeds it is reported as failed.
func WithCheckTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.checkTimeout = d
		}
	}
}

func NewEvaluator(logger *slog.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Evaluator{logger: logger, workers: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs all checks of suite. It returns an error only when the target
// cannot be accessed or ctx is done; in that case no partial results are returned.
func (e *Evaluator) Evaluate(ctx context.Context, suite *Suite) ([]*CheckResult, error) {
	if suite == nil {
		return nil, fmt.Errorf("suite is nil")
	}
	if !suite.running.CompareAndSwap(false, true) {
		return nil, ErrSuiteRunning
	}
	defer suite.running.Store(false)

	results := make([]*CheckResult, len(suite.checks))

	if e.workers <= 1 || len(suite.checks) <= 1 {
		for i, check := range suite.checks {
			res, err := e.runCheck(ctx, suite.target, i, check)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	pool := NewTaskPool(ctx, e.workers, e.logger).StopOnError()
	for i, check := range suite.checks {
		pool.Enqueue(fmt.Sprintf("check:%d:%s", i, check.Label()), func(ctx context.Context) error {
			res, err := e.runCheck(ctx, suite.target, i, check)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	pool.Join()

	if errs := pool.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Evaluator) runCheck(ctx context.Context, target ValidationTarget, idx int, check Check) (res *CheckResult, err error) {
	checkCtx := ctx
	if e.checkTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, e.checkTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("check panicked", "check_expression", check.Label(), "panic", p)
			res, err = failedResult(check, fmt.Sprintf("panic: %v", p)), nil
		}
	}()

	startTime := time.Now()
	res, err = check.Run(checkCtx, target)
	elapsed := time.Since(startTime).Milliseconds()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("evaluation of %s interrupted: %w", check.Label(), ctxErr)
		}
		if checkCtx.Err() == nil {
			return nil, fmt.Errorf("failed to evaluate check (%s): %w", check.Label(), err)
		}
		res = failedResult(check, fmt.Sprintf("check exceeded time budget of %s", e.checkTimeout))
	}

	e.logger.Debug("check completed",
		"check_index", idx,
		"check_expression", res.Check,
		"column", res.Column,
		"success", res.Success,
		"unexpected_count", res.UnexpectedCount,
		"duration_ms", elapsed)

	return res, nil
}
