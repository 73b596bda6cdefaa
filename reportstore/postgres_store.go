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
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore keeps runs in the validation_runs table.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgresStore connects to databaseURL and optionally applies migrations first.
func OpenPostgresStore(ctx context.Context, databaseURL string, applyMigrations bool, logger *slog.Logger) (*PostgresStore, error) {
	if applyMigrations {
		if err := Migrate(databaseURL, logger); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to report database: %w", err)
	}
	return NewPostgresStore(db, logger), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migration instance", "source_error", srcErr, "database_error", dbErr)
		}
	}()
	m.Log = &migrateLogger{logger: logger}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("report store schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("report store migrations applied")
	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

func (s *PostgresStore) Save(ctx context.Context, run *RunRecord) error {
	if run.Report == nil {
		return fmt.Errorf("run record %s has no report", run.ID)
	}

	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var profile sql.NullString
	if run.Profile != nil {
		data, err := json.Marshal(run.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		profile = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_runs
			(id, dataset, rule_set, overall_success, total_checks, failed_checks, success_rate,
			 started_at, finished_at, report, profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Dataset, run.RuleSet, run.Report.OverallSuccess, run.Report.TotalChecks,
		run.Report.FailedChecks, run.Report.SuccessRate, run.StartedAt, run.FinishedAt, string(report), profile)
	if err != nil {
		return fmt.Errorf("failed to insert validation run %s: %w", run.ID, err)
	}

	s.logger.Debug("validation run stored", "run_id", run.ID, "dataset", run.Dataset)
	return nil
}

const selectRunColumns = `SELECT id, dataset, rule_set, started_at, finished_at, report, profile FROM validation_runs`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

func (s *PostgresStore) List(ctx context.Context, dataset string, limit int) ([]*RunRecord, error) {
	query := selectRunColumns + ` WHERE ($1 = '' OR dataset = $1) ORDER BY started_at DESC`
	args := []any{dataset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error occurred during row iteration: %w", err)
	}
	return runs, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run     RunRecord
		report  []byte
		profile []byte
	)
	if err := row.Scan(&run.ID, &run.Dataset, &run.RuleSet, &run.StartedAt, &run.FinishedAt, &report, &profile); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(report, &run.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report of run %s: %w", run.ID, err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &run.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile of run %s: %w", run.ID, err)
		}
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
