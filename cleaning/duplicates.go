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
	"strings"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/table"
)

type Keep string

const (
	KeepFirst Keep = "first"
	KeepLast  Keep = "last"
	// KeepNone drops every row that has a duplicate.
	KeepNone Keep = "none"
)

func ParseKeep(s string) (Keep, error) {
	switch keep := Keep(strings.ToLower(strings.TrimSpace(s))); keep {
	case KeepFirst, KeepLast, KeepNone:
		return keep, nil
	default:
		return "", fmt.Errorf("unknown duplicate keep mode: %s", s)
	}
}

type DuplicateRemover struct {
	// Subset limits the compared columns; empty compares whole rows.
	Subset []string
	Keep   Keep
}

func (d DuplicateRemover) Description() string {
	return fmt.Sprintf("remove duplicates (keep=%s)", d.Keep)
}

func (d DuplicateRemover) Process(_ context.Context, t *table.Table) (*table.Table, error) {
	columns := d.Subset
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}

	values := make([][]any, len(columns))
	for i, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, name)
		}
		values[i] = col
	}

	keys := make([]string, t.NumRows())
	counts := make(map[string]int, t.NumRows())
	for r := range keys {
		var sb strings.Builder
		for i := range values {
			if i > 0 {
				sb.WriteByte(0x1f)
			}
			sb.WriteString(dbqprep.ValueKey(values[i][r]))
		}
		keys[r] = sb.String()
		counts[keys[r]]++
	}

	switch d.Keep {
	case KeepFirst, "":
		seen := make(map[string]struct{}, len(counts))
		return t.FilterRows(func(row int) bool {
			if _, dup := seen[keys[row]]; dup {
				return false
			}
			seen[keys[row]] = struct{}{}
			return true
		}), nil
	case KeepLast:
		remaining := make(map[string]int, len(counts))
		for k, n := range counts {
			remaining[k] = n
		}
		return t.FilterRows(func(row int) bool {
			remaining[keys[row]]--
			return remaining[keys[row]] == 0
		}), nil
	case KeepNone:
		return t.FilterRows(func(row int) bool {
			return counts[keys[row]] == 1
		}), nil
	default:
		return nil, fmt.Errorf("unknown duplicate keep mode: %s", d.Keep)
	}
}
