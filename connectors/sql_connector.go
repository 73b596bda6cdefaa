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

package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/DataBridgeTech/dbqprep"
)

type sqlCatalog struct {
	excludedSchemas []string
	// numbered placeholders let one argument fill both LIKE clauses
	numbered bool
}

var (
	postgresqlCatalog = sqlCatalog{
		excludedSchemas: []string{"pg_catalog", "information_schema"},
		numbered:        true,
	}
	mysqlCatalog = sqlCatalog{
		excludedSchemas: []string{"mysql", "information_schema", "performance_schema", "sys"},
	}
)

// SQLDbqConnector serves PostgreSQL and MySQL through database/sql.
type SQLDbqConnector struct {
	db      *sql.DB
	catalog sqlCatalog
	logger  *slog.Logger
}

func NewPostgresqlDbqConnector(db *sql.DB, logger *slog.Logger) dbqprep.DbqConnector {
	return newSQLDbqConnector(db, postgresqlCatalog, logger)
}

func NewMysqlDbqConnector(db *sql.DB, logger *slog.Logger) dbqprep.DbqConnector {
	return newSQLDbqConnector(db, mysqlCatalog, logger)
}

func newSQLDbqConnector(db *sql.DB, catalog sqlCatalog, logger *slog.Logger) *SQLDbqConnector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SQLDbqConnector{db: db, catalog: catalog, logger: logger}
}

func (c *SQLDbqConnector) Ping(ctx context.Context) (string, error) {
	if err := c.db.PingContext(ctx); err != nil {
		return "", err
	}
	return "OK", nil
}

func (c *SQLDbqConnector) ImportDatasets(ctx context.Context, filter string) ([]string, error) {
	query, args := c.catalog.datasetsQuery(filter)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query information_schema.tables: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			c.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var datasets []string
	for rows.Next() {
		var schemaName, tableName string
		if err := rows.Scan(&schemaName, &tableName); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		datasets = append(datasets, fmt.Sprintf("%s.%s", schemaName, tableName))
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error occurred during row iteration: %w", err)
	}

	return datasets, nil
}

func (c *SQLDbqConnector) Close() error {
	return c.db.Close()
}

func (c sqlCatalog) datasetsQuery(filter string) (string, []any) {
	quoted := make([]string, len(c.excludedSchemas))
	for i, schema := range c.excludedSchemas {
		quoted[i] = "'" + schema + "'"
	}

	query := fmt.Sprintf(`SELECT table_schema, table_name FROM information_schema.tables WHERE table_schema NOT IN (%s)`,
		strings.Join(quoted, ", "))

	var args []any
	if filter = strings.TrimSpace(filter); filter != "" {
		pattern := fmt.Sprintf("%%%s%%", filter)
		if c.numbered {
			query += " AND (table_schema LIKE $1 OR table_name LIKE $1)"
			args = append(args, pattern)
		} else {
			query += " AND (table_schema LIKE ? OR table_name LIKE ?)"
			args = append(args, pattern, pattern)
		}
	}
	query += " ORDER BY table_schema, table_name"

	return query, args
}
