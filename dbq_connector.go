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

import "context"

// DbqConnector is the interface that wraps warehouse level operations that
// are not tied to a single dataset.
type DbqConnector interface {
	// Ping checks connectivity and returns a short server description.
	Ping(ctx context.Context) (string, error)
	// ImportDatasets lists "schema.table" names, optionally filtered by a substring.
	ImportDatasets(ctx context.Context, filter string) ([]string, error)
	Close() error
}
