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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/splitting"
)

const EnvPrefix = "DBQPREP_"

// Key paths the pipeline writes back after splitting.
const (
	KeyTrainDataPath = "dataset.train_data_path"
	KeyTestDataPath  = "dataset.test_data_path"
	KeyValDataPath   = "dataset.val_data_path"
)

type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset" envPrefix:"DATASET_"`
	Validation ValidationConfig `yaml:"validation" envPrefix:"VALIDATION_"`
	Cleaning   CleaningConfig   `yaml:"cleaning"`
	Split      SplitConfig      `yaml:"split" envPrefix:"SPLIT_"`
	Reports    ReportsConfig    `yaml:"reports" envPrefix:"REPORTS_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
}

type DatasetConfig struct {
	// Name is the file name of the dataset, ".csv" is implied when it has no extension.
	Name              string `yaml:"name" env:"NAME"`
	SourcePath        string `yaml:"source_path" env:"SOURCE_PATH"`
	DataPath          string `yaml:"data_path" env:"DATA_PATH"`
	ProcessedDataPath string `yaml:"processed_data_path" env:"PROCESSED_DATA_PATH"`
	TrainDataPath     string `yaml:"train_data_path,omitempty"`
	TestDataPath      string `yaml:"test_data_path,omitempty"`
	ValDataPath       string `yaml:"val_data_path,omitempty"`
}

// FileName returns Name with the default extension applied.
func (d DatasetConfig) FileName() string {
	name := d.Name
	if name == "" {
		name = "data"
	}
	if filepath.Ext(name) == "" {
		name += ".csv"
	}
	return name
}

func (d DatasetConfig) RawFilePath() string {
	return filepath.Join(d.DataPath, d.FileName())
}

func (d DatasetConfig) ProcessedFilePath() string {
	return filepath.Join(d.ProcessedDataPath, d.FileName())
}

type ValidationConfig struct {
	RulesFile      string        `yaml:"rules_file" env:"RULES_FILE"`
	RuleSet        string        `yaml:"rule_set" env:"RULE_SET"`
	ReportLimit    int           `yaml:"report_limit" env:"REPORT_LIMIT"`
	Workers        int           `yaml:"workers" env:"WORKERS"`
	CheckTimeout   time.Duration `yaml:"check_timeout" env:"CHECK_TIMEOUT"`
	NumericColumns []string      `yaml:"numeric_columns" env:"NUMERIC_COLUMNS"`
	Profile        bool          `yaml:"profile" env:"PROFILE"`

	// DataSource switches validation from the raw CSV to a warehouse table.
	DataSource dbqprep.DataSource `yaml:"data_source,omitempty" envPrefix:"WAREHOUSE_"`
	Where      string             `yaml:"where,omitempty" env:"WHERE"`
}

func (v ValidationConfig) UsesWarehouse() bool {
	return v.DataSource.Type != ""
}

func (v ValidationConfig) ValidatorConfig() dbqprep.ValidatorConfig {
	return dbqprep.ValidatorConfig{
		ReportLimit:  v.ReportLimit,
		Workers:      v.Workers,
		CheckTimeout: v.CheckTimeout,
	}
}

type CleaningConfig struct {
	NullStrategy      string   `yaml:"null_strategy"`
	FillValue         string   `yaml:"fill_value,omitempty"`
	DuplicateSubset   []string `yaml:"duplicate_subset,omitempty"`
	DuplicateKeep     string   `yaml:"duplicate_keep"`
	OutlierColumns    []string `yaml:"outlier_columns,omitempty"`
	OutlierMultiplier float64  `yaml:"outlier_multiplier"`
}

type SplitConfig struct {
	TestSize float64 `yaml:"test_size" env:"TEST_SIZE"`
	ValSize  float64 `yaml:"val_size" env:"VAL_SIZE"`
	// Seed is nil when unset; zero is a valid seed.
	Seed *uint64 `yaml:"seed" env:"SEED"`
}

// Options returns the splitter options for this section.
func (c SplitConfig) Options() splitting.Options {
	opts := splitting.Options{TestSize: c.TestSize, ValSize: c.ValSize, Seed: splitting.DefaultSeed}
	if c.Seed != nil {
		opts.Seed = *c.Seed
	}
	return opts
}

type ReportsConfig struct {
	// Store is "file", "postgres" or empty to skip persistence.
	Store       string `yaml:"store" env:"STORE"`
	Dir         string `yaml:"dir" env:"DIR"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	Migrate     bool   `yaml:"migrate" env:"MIGRATE"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// LoadOptions controls where Load looks for overrides.
type LoadOptions struct {
	// EnvFiles are loaded with godotenv before reading the environment; missing files are skipped.
	EnvFiles []string
	// Environment replaces the process environment when set.
	Environment map[string]string
}

// Load reads the config file, applies environment overrides and defaults,
// and validates the result. The returned Store stays bound to the file.
func Load(path string, opts LoadOptions) (*Config, *Store, error) {
	store, err := Open(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := FromStore(store, opts)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func FromStore(store *Store, opts LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := store.Decode(cfg); err != nil {
		return nil, err
	}

	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	envOpts := env.Options{Prefix: EnvPrefix, Environment: opts.Environment}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Validation.ReportLimit <= 0 {
		c.Validation.ReportLimit = dbqprep.DefaultReportLimit
	}
	if c.Cleaning.NullStrategy == "" {
		c.Cleaning.NullStrategy = "drop"
	}
	if c.Cleaning.DuplicateKeep == "" {
		c.Cleaning.DuplicateKeep = "first"
	}
	if c.Cleaning.OutlierMultiplier <= 0 {
		c.Cleaning.OutlierMultiplier = 1.5
	}
	if c.Split.TestSize == 0 {
		c.Split.TestSize = splitting.DefaultTestSize
	}
	if c.Split.ValSize == 0 {
		c.Split.ValSize = splitting.DefaultValSize
	}
	if c.Split.Seed == nil {
		seed := uint64(splitting.DefaultSeed)
		c.Split.Seed = &seed
	}
	if c.Reports.Store == "file" && c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Dataset.DataPath == "" {
		errs = append(errs, fmt.Errorf("%w: dataset.data_path", ErrMissingValue))
	}
	if c.Dataset.ProcessedDataPath == "" {
		errs = append(errs, fmt.Errorf("%w: dataset.processed_data_path", ErrMissingValue))
	}
	if c.Validation.RulesFile == "" {
		errs = append(errs, fmt.Errorf("%w: validation.rules_file", ErrMissingValue))
	}
	if c.Validation.UsesWarehouse() {
		if err := c.Validation.DataSource.Type.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("split.test_size must be in (0, 1), got %v", c.Split.TestSize))
	}
	if c.Split.ValSize <= 0 || c.Split.ValSize >= 1 {
		errs = append(errs, fmt.Errorf("split.val_size must be in (0, 1), got %v", c.Split.ValSize))
	}
	switch strings.ToLower(c.Reports.Store) {
	case "", "file":
	case "postgres":
		if c.Reports.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: reports.database_url", ErrMissingValue))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reports.store %q", c.Reports.Store))
	}

	return errors.Join(errs...)
}
