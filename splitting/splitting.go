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

package splitting

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"github.com/DataBridgeTech/dbqprep/table"
)

const (
	DefaultTestSize = 0.2
	DefaultValSize  = 0.2
	DefaultSeed     = 42
)

type Options struct {
	// TestSize is the share of all rows held out for testing.
	TestSize float64
	// ValSize is the share of the remaining rows held out for validation.
	ValSize float64
	// Seed is used as given. Callers wanting the default pass DefaultSeed.
	Seed uint64
}

func (o Options) withDefaults() Options {
	if o.TestSize == 0 {
		o.TestSize = DefaultTestSize
	}
	if o.ValSize == 0 {
		o.ValSize = DefaultValSize
	}
	return o
}

type Result struct {
	Train *table.Table
	Test  *table.Table
	Val   *table.Table
}

// Split shuffles the rows with a seeded generator and partitions them into
// test, then validation out of the remainder, then train. Equal inputs and
// options always produce equal partitions.
func Split(t *table.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return nil, fmt.Errorf("test size must be in (0, 1), got %v", opts.TestSize)
	}
	if opts.ValSize <= 0 || opts.ValSize >= 1 {
		return nil, fmt.Errorf("val size must be in (0, 1), got %v", opts.ValSize)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	rest, test, err := holdOut(rng, identity(t.NumRows()), opts.TestSize)
	if err != nil {
		return nil, fmt.Errorf("test split: %w", err)
	}
	train, val, err := holdOut(rng, rest, opts.ValSize)
	if err != nil {
		return nil, fmt.Errorf("validation split: %w", err)
	}

	return &Result{
		Train: t.SelectRows(train),
		Test:  t.SelectRows(test),
		Val:   t.SelectRows(val),
	}, nil
}

func identity(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// holdOut shuffles rows and returns the kept and the held out part, the
// latter sized ceil(size * len(rows)).
func holdOut(rng *rand.Rand, rows []int, size float64) ([]int, []int, error) {
	n := len(rows)
	held := int(math.Ceil(size * float64(n)))
	if n == 0 || held >= n {
		return nil, nil, fmt.Errorf("%d rows cannot be split with size %v", n, size)
	}

	shuffled := make([]int, n)
	copy(shuffled, rows)
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[held:], shuffled[:held], nil
}

type Paths struct {
	Train string
	Test  string
	Val   string
}

// OutputPaths places "<base>_train<ext>" and its siblings under
// processedDir/train, processedDir/test and processedDir/val.
func OutputPaths(processedDir string, sourceFile string) Paths {
	ext := filepath.Ext(sourceFile)
	if ext == "" {
		ext = ".csv"
	}
	base := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))

	return Paths{
		Train: filepath.Join(processedDir, "train", base+"_train"+ext),
		Test:  filepath.Join(processedDir, "test", base+"_test"+ext),
		Val:   filepath.Join(processedDir, "val", base+"_val"+ext),
	}
}

// Write stores every partition as CSV, creating directories as needed.
func (r *Result) Write(paths Paths) error {
	for _, part := range []struct {
		path string
		data *table.Table
	}{
		{paths.Train, r.Train},
		{paths.Test, r.Test},
		{paths.Val, r.Val},
	} {
		if err := table.WriteCSVFile(part.path, part.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", part.path, err)
		}
	}
	return nil
}
