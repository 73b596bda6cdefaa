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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataBridgeTech/dbqprep/config"
	"github.com/DataBridgeTech/dbqprep/dbq"
	"github.com/DataBridgeTech/dbqprep/logging"
	"github.com/DataBridgeTech/dbqprep/pipeline"
	"github.com/DataBridgeTech/dbqprep/reportstore"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	flags := flag.NewFlagSet("dbqprep", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var configPath, envFile, command, stage, filter string
	flags.StringVar(&configPath, "config", "configs/data_config.yaml", "Path to the pipeline config (yaml or json)")
	flags.StringVar(&envFile, "env", ".env", "Env file with DBQPREP_* overrides, skipped when missing")
	flags.StringVar(&command, "command", "run", "Command: run, migrate, datasets, ping, version")
	flags.StringVar(&stage, "stage", "all", "Stage to run: all, ingestion, validation, cleaning, splitting")
	flags.StringVar(&filter, "filter", "", "Substring filter for the datasets command")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}

	if command == "version" {
		_, _ = fmt.Fprintln(stdout, dbq.GetDbqPrepLibVersion())
		return exitOK
	}

	cfg, store, err := config.Load(configPath, config.LoadOptions{EnvFiles: []string{envFile}})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFailed
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if logger == nil {
		_, _ = fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return exitFailed
	}
	if err != nil {
		logger.Warn("invalid log level", "error", err)
	}

	switch command {
	case "run":
		err = runPipeline(ctx, cfg, store, stage, logger)
	case "migrate":
		err = reportstore.Migrate(cfg.Reports.DatabaseURL, logger)
	case "datasets":
		err = listDatasets(ctx, cfg, filter, stdout, logger)
	case "ping":
		err = ping(ctx, cfg, stdout, logger)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s (use: run, migrate, datasets, ping, version)\n", command)
		return exitUsage
	}

	if err != nil {
		if errors.Is(err, pipeline.ErrValidationFailed) {
			logger.Error("data validation failed, stopping pipeline")
		} else {
			logger.Error("command failed", "command", command, "error", err)
		}
		return exitFailed
	}
	return exitOK
}

func runPipeline(ctx context.Context, cfg *config.Config, store *config.Store, stage string, logger *slog.Logger) error {
	stages := pipeline.DefaultStages(logger)
	if stage != "all" {
		s, err := pipeline.StageByName(stage, logger)
		if err != nil {
			return err
		}
		stages = []pipeline.Stage{s}
	}

	reports, err := pipeline.OpenReportStore(ctx, cfg.Reports, logger)
	if err != nil {
		return err
	}
	if reports != nil {
		defer func() {
			if err := reports.Close(); err != nil {
				logger.Warn("failed to close report store", "error", err)
			}
		}()
	}

	logger.Info("starting data preparation pipeline", "stages", len(stages))
	state := &pipeline.State{Config: cfg, Store: store, Reports: reports}
	if err := pipeline.New(logger, stages...).Run(ctx, state); err != nil {
		return err
	}
	logger.Info("data preparation pipeline completed")
	return nil
}

func listDatasets(ctx context.Context, cfg *config.Config, filter string, stdout io.Writer, logger *slog.Logger) error {
	if !cfg.Validation.UsesWarehouse() {
		return fmt.Errorf("validation.data_source is not configured")
	}

	connector, err := dbq.NewDbqConnector(&cfg.Validation.DataSource, logger)
	if err != nil {
		return err
	}
	defer func() { _ = connector.Close() }()

	datasets, err := connector.ImportDatasets(ctx, filter)
	if err != nil {
		return err
	}
	for _, dataset := range datasets {
		_, _ = fmt.Fprintln(stdout, dataset)
	}
	return nil
}

func ping(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	if !cfg.Validation.UsesWarehouse() {
		return fmt.Errorf("validation.data_source is not configured")
	}

	connector, err := dbq.NewDbqConnector(&cfg.Validation.DataSource, logger)
	if err != nil {
		return err
	}
	defer func() { _ = connector.Close() }()

	info, err := connector.Ping(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s: %s\n", cfg.Validation.DataSource.ID, info)
	return nil
}
