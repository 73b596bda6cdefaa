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
	"strconv"
	"strings"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/table"
)

type NullStrategy string

const (
	NullDrop         NullStrategy = "drop"
	NullFill         NullStrategy = "fill"
	NullForwardFill  NullStrategy = "forward_fill"
	NullBackwardFill NullStrategy = "backward_fill"
)

func ParseNullStrategy(s string) (NullStrategy, error) {
	switch strategy := NullStrategy(strings.ToLower(strings.TrimSpace(s))); strategy {
	case NullDrop, NullFill, NullForwardFill, NullBackwardFill:
		return strategy, nil
	default:
		return "", fmt.Errorf("unknown null strategy: %s", s)
	}
}

// ParseFillValue reads a configured fill value as an integer, a float, or a string.
func ParseFillValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

type NullValueHandler struct {
	Strategy  NullStrategy
	FillValue any
}

func (h NullValueHandler) Description() string {
	return fmt.Sprintf("handle nulls (%s)", h.Strategy)
}

func (h NullValueHandler) Process(_ context.Context, t *table.Table) (*table.Table, error) {
	switch h.Strategy {
	case NullDrop:
		return t.FilterRows(func(row int) bool {
			for _, v := range t.Row(row) {
				if dbqprep.IsNull(v) {
					return false
				}
			}
			return true
		}), nil
	case NullFill:
		if dbqprep.IsNull(h.FillValue) {
			return nil, fmt.Errorf("fill strategy requires a fill value")
		}
		return mapColumns(t, func(values []any) {
			for i, v := range values {
				if dbqprep.IsNull(v) {
					values[i] = h.FillValue
				}
			}
		})
	case NullForwardFill:
		return mapColumns(t, func(values []any) {
			var last any
			for i, v := range values {
				if dbqprep.IsNull(v) {
					values[i] = last
				} else {
					last = v
				}
			}
		})
	case NullBackwardFill:
		return mapColumns(t, func(values []any) {
			var next any
			for i := len(values) - 1; i >= 0; i-- {
				if dbqprep.IsNull(values[i]) {
					values[i] = next
				} else {
					next = values[i]
				}
			}
		})
	default:
		return nil, fmt.Errorf("unknown null strategy: %s", h.Strategy)
	}
}

func mapColumns(t *table.Table, fn func(values []any)) (*table.Table, error) {
	result := t
	for _, name := range t.ColumnNames() {
		values, _ := t.Column(name)
		fn(values)

		var err error
		if result, err = result.WithColumn(name, values); err != nil {
			return nil, err
		}
	}
	return result, nil
}
