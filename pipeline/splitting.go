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

	"github.com/DataBridgeTech/dbqprep/config"
	"github.com/DataBridgeTech/dbqprep/splitting"
)

// SplittingStage partitions the processed dataset and records the output
// paths under dataset.*_data_path.
type SplittingStage struct {
	logger *slog.Logger
}

func NewSplittingStage(logger *slog.Logger) *SplittingStage {
	return &SplittingStage{logger: noopLogger(logger)}
}

func (s *SplittingStage) Name() string {
	return "splitting"
}

func (s *SplittingStage) Run(_ context.Context, state *State) error {
	dataset := &state.Config.Dataset
	source := dataset.ProcessedFilePath()

	data, err := loadTable(state, source, s.logger)
	if err != nil {
		return err
	}
	s.logger.Info("splitting dataset", "rows", data.NumRows(), "columns", data.NumColumns())

	result, err := splitting.Split(data, state.Config.Split.Options())
	if err != nil {
		return err
	}
	s.logger.Info("data split",
		"train", result.Train.NumRows(),
		"test", result.Test.NumRows(),
		"val", result.Val.NumRows())

	paths := splitting.OutputPaths(dataset.ProcessedDataPath, source)
	if err := result.Write(paths); err != nil {
		return err
	}

	dataset.TrainDataPath = paths.Train
	dataset.TestDataPath = paths.Test
	dataset.ValDataPath = paths.Val
	if state.Store != nil {
		for key, value := range map[string]string{
			config.KeyTrainDataPath: paths.Train,
			config.KeyTestDataPath:  paths.Test,
			config.KeyValDataPath:   paths.Val,
		} {
			if err := state.Store.Update(key, value); err != nil {
				return fmt.Errorf("failed to record %s: %w", key, err)
			}
		}
	}
	s.logger.Info("split files saved", "train", paths.Train, "test", paths.Test, "val", paths.Val)

	state.Split = result
	state.Paths = paths
	return nil
}
