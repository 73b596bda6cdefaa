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
	"math"
	"slices"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/table"
)

const DefaultOutlierMultiplier = 1.5

// OutlierRemover drops rows outside [Q1 - k*IQR, Q3 + k*IQR] for every listed
// column, one column after another. Rows with a null in a filtered column are
// dropped as well. Columns missing from the table are skipped.
type OutlierRemover struct {
	Columns    []string
	Multiplier float64
}

func (o OutlierRemover) Description() string {
	return fmt.Sprintf("remove outliers %v (k=%g)", o.Columns, o.multiplier())
}

func (o OutlierRemover) multiplier() float64 {
	if o.Multiplier <= 0 {
		return DefaultOutlierMultiplier
	}
	return o.Multiplier
}

func (o OutlierRemover) Process(ctx context.Context, t *table.Table) (*table.Table, error) {
	result := t
	for _, name := range o.Columns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, ok := result.Column(name)
		if !ok {
			continue
		}

		numbers := make([]float64, len(values))
		present := make([]bool, len(values))
		var sorted []float64
		for i, v := range values {
			if dbqprep.IsNull(v) {
				continue
			}
			f, err := dbqprep.ToFloat64(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			numbers[i], present[i] = f, true
			sorted = append(sorted, f)
		}
		if len(sorted) == 0 {
			continue
		}

		lower, upper := IQRBounds(sorted, o.multiplier())
		result = result.FilterRows(func(row int) bool {
			return present[row] && numbers[row] >= lower && numbers[row] <= upper
		})
	}
	return result, nil
}

// IQRBounds returns the inclusive fence around the interquartile range of xs.
func IQRBounds(xs []float64, multiplier float64) (lower, upper float64) {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)

	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - multiplier*iqr, q3 + multiplier*iqr
}

// Quantile interpolates linearly between the closest ranks of sorted.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
