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

package reportstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/DataBridgeTech/dbqprep"
)

var ErrRunNotFound = errors.New("validation run not found")

// RunRecord is one persisted validation run.
type RunRecord struct {
	ID         uuid.UUID                 `json:"id"`
	Dataset    string                    `json:"dataset"`
	RuleSet    string                    `json:"rule_set,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Report     *dbqprep.ValidationReport `json:"report"`
	Profile    *dbqprep.TableMetrics     `json:"profile,omitempty"`
}

func NewRunRecord(dataset string, ruleSet string, startedAt time.Time, report *dbqprep.ValidationReport) *RunRecord {
	return &RunRecord{
		ID:         uuid.New(),
		Dataset:    dataset,
		RuleSet:    ruleSet,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Report:     report,
	}
}

type Store interface {
	Save(ctx context.Context, run *RunRecord) error
	Get(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	// List returns the latest runs of a dataset, newest first. An empty dataset lists all runs.
	List(ctx context.Context, dataset string, limit int) ([]*RunRecord, error)
	Close() error
}
