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

	"github.com/DataBridgeTech/dbqprep/table"
)

// IngestionStage copies the source CSV into the raw data path.
type IngestionStage struct {
	logger *slog.Logger
}

func NewIngestionStage(logger *slog.Logger) *IngestionStage {
	return &IngestionStage{logger: noopLogger(logger)}
}

func (s *IngestionStage) Name() string {
	return "ingestion"
}

func (s *IngestionStage) Run(_ context.Context, state *State) error {
	dataset := state.Config.Dataset
	rawPath := dataset.RawFilePath()

	source := dataset.SourcePath
	if source == "" {
		s.logger.Info("no source path configured, using raw file in place", "path", rawPath)
		source = rawPath
	}

	data, err := table.ReadCSVFile(source, table.CSVOptions{})
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", source, err)
	}
	s.logger.Info("data imported", "source", source, "rows", data.NumRows(), "columns", data.NumColumns())

	if source != rawPath {
		if err := table.WriteCSVFile(rawPath, data); err != nil {
			return err
		}
		s.logger.Info("data saved", "path", rawPath)
	}

	state.Data = data
	return nil
}
