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

package table

import (
	"fmt"

	"github.com/DataBridgeTech/dbqprep"
)

// CoerceNumeric converts the named columns to float64. Values that cannot be
// parsed become null and are counted per column in the returned map.
func (t *Table) CoerceNumeric(columns ...string) (*Table, map[string]int, error) {
	failures := make(map[string]int, len(columns))
	result := t
	for _, name := range columns {
		values, ok := result.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", dbqprep.ErrColumnNotFound, name)
		}

		coerced := make([]any, len(values))
		for i, v := range values {
			if dbqprep.IsNull(v) {
				continue
			}
			f, err := dbqprep.ToFloat64(v)
			if err != nil {
				failures[name]++
				continue
			}
			coerced[i] = f
		}

		var err error
		if result, err = result.WithColumn(name, coerced); err != nil {
			return nil, nil, err
		}
	}
	return result, failures, nil
}
