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
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/adapters"
	"github.com/DataBridgeTech/dbqprep/dbq"
	"github.com/DataBridgeTech/dbqprep/profilers"
	"github.com/DataBridgeTech/dbqprep/reportstore"
)

type warehouseOpener func(dataSource *dbqprep.DataSource, dataset string, where string, logger *slog.Logger) (adapters.WarehouseTarget, error)

// ValidationStage checks the dataset against its rule set and halts the
// pipeline with ErrValidationFailed on a negative verdict.
type ValidationStage struct {
	logger        *slog.Logger
	openWarehouse warehouseOpener
}

func NewValidationStage(logger *slog.Logger) *ValidationStage {
	return &ValidationStage{
		logger:        noopLogger(logger),
		openWarehouse: dbq.NewValidationTarget,
	}
}

func (s *ValidationStage) Name() string {
	return "validation"
}

func (s *ValidationStage) Run(ctx context.Context, state *State) error {
	cfg := state.Config.Validation
	startedAt := time.Now()

	rulesFile, err := dbqprep.LoadRulesFileConfig(cfg.RulesFile)
	if err != nil {
		return err
	}

	ruleSetName := cfg.RuleSet
	if ruleSetName == "" {
		ruleSetName = strings.TrimSuffix(state.Config.Dataset.FileName(), filepath.Ext(state.Config.Dataset.FileName()))
	}
	ruleSet, err := rulesFile.FindRule(ruleSetName)
	if err != nil {
		return err
	}

	target, release, err := s.target(ctx, state, ruleSet)
	if err != nil {
		return err
	}
	defer release()

	if cfg.Profile {
		profile, err := profilers.NewBaseProfiler(s.logger).ProfileDataset(ctx, target, dbqprep.ProfileOptions{
			DatasetName:   ruleSet.Dataset,
			MaxConcurrent: cfg.Workers,
		})
		if err != nil {
			return fmt.Errorf("failed to profile dataset: %w", err)
		}
		state.Profile = profile
		s.logger.Info("dataset profiled",
			"rows", profile.TotalRows,
			"columns", profile.TotalColumns,
			"duration_ms", profile.ProfilingDurationMs)
	}

	validator := dbqprep.NewDbqDataValidator(s.logger, cfg.ValidatorConfig())
	report, err := validator.Validate(ctx, target, ruleSet.SuiteBuilder())
	if err != nil {
		return err
	}
	state.Report = report
	dbqprep.LogReport(s.logger, report)

	if state.Reports != nil {
		run := reportstore.NewRunRecord(ruleSet.Dataset, ruleSetName, startedAt, report)
		run.Profile = state.Profile
		if err := state.Reports.Save(ctx, run); err != nil {
			return fmt.Errorf("failed to store validation run: %w", err)
		}
		s.logger.Info("validation run stored", "run_id", run.ID)
	}

	if !report.OverallSuccess {
		return fmt.Errorf("%w: %d of %d checks failed", ErrValidationFailed, report.FailedChecks, report.TotalChecks)
	}
	return nil
}

// target resolves the validation target and a release func for it. CSV data
// gets its numeric columns coerced first and the coerced table is kept in state.
func (s *ValidationStage) target(ctx context.Context, state *State, ruleSet *dbqprep.ValidationRule) (dbqprep.ValidationTarget, func(), error) {
	cfg := state.Config.Validation

	if cfg.UsesWarehouse() {
		where := cfg.Where
		if where == "" {
			where = ruleSet.Where
		}

		target, err := s.openWarehouse(&cfg.DataSource, ruleSet.Dataset, where, s.logger)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := target.Close(); err != nil {
				s.logger.Warn("failed to close warehouse target", "error", err)
			}
		}
		if err := target.Ping(ctx); err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to reach %s: %w", cfg.DataSource.Type, err)
		}
		s.logger.Info("validating warehouse dataset", "data_source", cfg.DataSource.ID, "dataset", ruleSet.Dataset)
		return target, release, nil
	}

	data, err := loadTable(state, state.Config.Dataset.RawFilePath(), s.logger)
	if err != nil {
		return nil, nil, err
	}

	if len(cfg.NumericColumns) > 0 {
		coerced, failures, err := data.CoerceNumeric(cfg.NumericColumns...)
		if err != nil {
			return nil, nil, err
		}
		for _, column := range cfg.NumericColumns {
			s.logger.Info("converted column to numeric", "column", column, "unparsable", failures[column])
		}
		data = coerced
	}

	state.Data = data
	s.logger.Info("validating dataset", "rows", data.NumRows(), "columns", data.NumColumns())
	return data, func() {}, nil
}
