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

	"github.com/DataBridgeTech/dbqprep/cleaning"
	"github.com/DataBridgeTech/dbqprep/config"
	"github.com/DataBridgeTech/dbqprep/table"
)

// CleaningStage runs the configured cleaning chain and writes the processed file.
type CleaningStage struct {
	logger *slog.Logger
}

func NewCleaningStage(logger *slog.Logger) *CleaningStage {
	return &CleaningStage{logger: noopLogger(logger)}
}

func (s *CleaningStage) Name() string {
	return "cleaning"
}

func (s *CleaningStage) Run(ctx context.Context, state *State) error {
	chain, err := NewCleaningChain(state.Config.Cleaning, s.logger)
	if err != nil {
		return err
	}

	data, err := loadTable(state, state.Config.Dataset.RawFilePath(), s.logger)
	if err != nil {
		return err
	}
	if columns := state.Config.Validation.NumericColumns; len(columns) > 0 {
		if data, _, err = data.CoerceNumeric(columns...); err != nil {
			return err
		}
	}

	cleaned, err := chain.Run(ctx, data)
	if err != nil {
		return err
	}

	path := state.Config.Dataset.ProcessedFilePath()
	if err := table.WriteCSVFile(path, cleaned); err != nil {
		return err
	}

	s.logger.Info("cleaned data saved",
		"path", path,
		"rows", cleaned.NumRows(),
		"retention", fmt.Sprintf("%.2f%%", cleaning.Retention(data.NumRows(), cleaned.NumRows())))

	state.Data = cleaned
	return nil
}

// NewCleaningChain builds null handling, duplicate removal and, when columns
// are configured, outlier removal from cfg.
func NewCleaningChain(cfg config.CleaningConfig, logger *slog.Logger) (*cleaning.Chain, error) {
	strategy, err := cleaning.ParseNullStrategy(cfg.NullStrategy)
	if err != nil {
		return nil, err
	}
	keep, err := cleaning.ParseKeep(cfg.DuplicateKeep)
	if err != nil {
		return nil, err
	}

	nulls := cleaning.NullValueHandler{Strategy: strategy}
	if strategy == cleaning.NullFill {
		if cfg.FillValue == "" {
			return nil, fmt.Errorf("cleaning.fill_value is required for the fill strategy")
		}
		nulls.FillValue = cleaning.ParseFillValue(cfg.FillValue)
	}

	chain := cleaning.NewChain(logger).
		Add(nulls).
		Add(cleaning.DuplicateRemover{Subset: cfg.DuplicateSubset, Keep: keep})
	if len(cfg.OutlierColumns) > 0 {
		chain.Add(cleaning.OutlierRemover{Columns: cfg.OutlierColumns, Multiplier: cfg.OutlierMultiplier})
	}
	return chain, nil
}
