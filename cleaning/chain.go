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

package cleaning

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/DataBridgeTech/dbqprep/table"
)

// Processor is a single table transformation step.
type Processor interface {
	Process(ctx context.Context, t *table.Table) (*table.Table, error)
	Description() string
}

// Chain applies processors in order, logging the row count around every step.
type Chain struct {
	logger     *slog.Logger
	processors []Processor
}

func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Chain{logger: logger}
}

func (c *Chain) Add(p Processor) *Chain {
	c.processors = append(c.processors, p)
	return c
}

func (c *Chain) Len() int {
	return len(c.processors)
}

func (c *Chain) Run(ctx context.Context, t *table.Table) (*table.Table, error) {
	result := t
	for idx, p := range c.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.logger.Info("cleaning step", "step", idx+1, "description", p.Description())
		before := result.NumRows()

		next, err := p.Process(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("cleaning step %d (%s): %w", idx+1, p.Description(), err)
		}
		result = next

		c.logger.Info("cleaning step done", "step", idx+1, "rows_before", before, "rows_after", result.NumRows())
	}
	return result, nil
}

// Retention is the share of input rows kept, in percent.
func Retention(before, after int) float64 {
	if before == 0 {
		return 100
	}
	return float64(after) / float64(before) * 100
}
