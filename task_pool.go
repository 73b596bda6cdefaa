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
	"io"
	"log/slog"
	"sync"
	"time"
)

// TaskPool runs tasks on a bounded number of goroutines.
type TaskPool struct {
	ctx         context.Context
	cancel      context.CancelFunc
	semaphore   chan struct{}
	logger      *slog.Logger
	stopOnError bool
	wg          sync.WaitGroup
	mu          sync.Mutex
	errors      []error
}

func NewTaskPool(ctx context.Context, poolSize int, logger *slog.Logger) *TaskPool {
	if logger == nil {
		// noop logger by default
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if poolSize < 1 {
		poolSize = 1
	}

	poolCtx, cancel := context.WithCancel(ctx)
	return &TaskPool{
		ctx:       poolCtx,
		cancel:    cancel,
		semaphore: make(chan struct{}, poolSize),
		logger:    logger,
	}
}

// StopOnError makes the first failing task cancel the context handed to all
// tasks; tasks still waiting for a slot are skipped.
func (tp *TaskPool) StopOnError() *TaskPool {
	tp.stopOnError = true
	return tp
}

func (tp *TaskPool) Enqueue(id string, task func(ctx context.Context) error) {
	tp.wg.Add(1)
	go func() {
		defer tp.wg.Done()

		select {
		case tp.semaphore <- struct{}{}:
		case <-tp.ctx.Done():
			tp.logger.Debug("skipping task", "task_id", id, "reason", tp.ctx.Err())
			return
		}
		defer func() { <-tp.semaphore }()

		tp.logger.Debug("executing task", "task_id", id)
		exeStartTime := time.Now()
		if err := task(tp.ctx); err != nil {
			tp.logger.Error("task failed", "task_id", id, "error", err.Error())
			tp.mu.Lock()
			tp.errors = append(tp.errors, err)
			tp.mu.Unlock()
			if tp.stopOnError {
				tp.cancel()
			}
		}
		elapsed := time.Since(exeStartTime).Milliseconds()
		tp.logger.Debug("completed task", "task_id", id, "elapsed_ms", elapsed)
	}()
}

// Join waits for all enqueued tasks and releases the pool context.
func (tp *TaskPool) Join() {
	tp.wg.Wait()
	tp.cancel()
}

// Errors returns task errors in the order they were recorded.
func (tp *TaskPool) Errors() []error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	errsCopy := make([]error, len(tp.errors))
	copy(errsCopy, tp.errors)
	return errsCopy
}
