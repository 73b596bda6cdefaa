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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/config"
	"github.com/DataBridgeTech/dbqprep/reportstore"
	"github.com/DataBridgeTech/dbqprep/splitting"
	"github.com/DataBridgeTech/dbqprep/table"
)

// ErrValidationFailed halts the pipeline when the validation verdict is negative.
var ErrValidationFailed = errors.New("data validation failed")

const bannerWidth = 60

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *State) error
}

// State is shared by the stages of one pipeline run.
type State struct {
	Config *config.Config
	// Store receives key path write-backs; nil keeps them in memory only.
	Store *config.Store
	// Reports persists validation runs; nil disables persistence.
	Reports reportstore.Store

	// Data is the latest version of the dataset, replaced by every stage.
	Data    *table.Table
	Report  *dbqprep.ValidationReport
	Profile *dbqprep.TableMetrics
	Split   *splitting.Result
	Paths   splitting.Paths
}

type Pipeline struct {
	logger *slog.Logger
	stages []Stage
}

func New(logger *slog.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{logger: logger, stages: stages}
}

// Run executes the stages in order and stops at the first error.
func (p *Pipeline) Run(ctx context.Context, state *State) error {
	if state == nil || state.Config == nil {
		return fmt.Errorf("pipeline state has no config")
	}

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.banner("starting", stage.Name())
		if err := stage.Run(ctx, state); err != nil {
			p.banner("failed", stage.Name())
			return fmt.Errorf("%s: %w", stage.Name(), err)
		}
		p.banner("completed", stage.Name())
	}
	return nil
}

func (p *Pipeline) banner(status string, stage string) {
	line := strings.Repeat("=", bannerWidth)
	level := slog.LevelInfo
	if status == "failed" {
		level = slog.LevelError
	}
	p.logger.Info(line)
	p.logger.Log(context.Background(), level, strings.ToUpper(status), "stage", stage)
	p.logger.Info(line)
}

// DefaultStages returns ingestion, validation, cleaning and splitting.
func DefaultStages(logger *slog.Logger) []Stage {
	return []Stage{
		NewIngestionStage(logger),
		NewValidationStage(logger),
		NewCleaningStage(logger),
		NewSplittingStage(logger),
	}
}

// StageByName resolves a single stage for partial runs.
func StageByName(name string, logger *slog.Logger) (Stage, error) {
	for _, stage := range DefaultStages(logger) {
		if stage.Name() == name {
			return stage, nil
		}
	}
	return nil, fmt.Errorf("unknown stage: %s", name)
}

// OpenReportStore returns the configured report store, or nil when persistence is off.
func OpenReportStore(ctx context.Context, cfg config.ReportsConfig, logger *slog.Logger) (reportstore.Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "":
		return nil, nil
	case "file":
		store, err := reportstore.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := reportstore.OpenPostgresStore(ctx, cfg.DatabaseURL, cfg.Migrate, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown report store: %s", cfg.Store)
	}
}

func noopLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// loadTable returns state.Data or reads path when no earlier stage produced data.
func loadTable(state *State, path string, logger *slog.Logger) (*table.Table, error) {
	if state.Data != nil {
		return state.Data, nil
	}

	logger.Info("loading dataset", "path", path)
	t, err := table.ReadCSVFile(path, table.CSVOptions{})
	if err != nil {
		return nil, err
	}
	return t, nil
}
