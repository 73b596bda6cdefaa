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

package dbq

import (
	"fmt"
	"log/slog"

	"github.com/DataBridgeTech/dbqprep"
	"github.com/DataBridgeTech/dbqprep/adapters"
	"github.com/DataBridgeTech/dbqprep/cnn"
	"github.com/DataBridgeTech/dbqprep/connectors"
	"github.com/DataBridgeTech/dbqprep/profilers"
)

const (
	Version = "v0.4.0"
)

func GetDbqPrepLibVersion() string {
	return Version
}

func NewDbqConnector(dataSource *dbqprep.DataSource, logger *slog.Logger) (dbqprep.DbqConnector, error) {
	if err := dataSource.Type.Validate(); err != nil {
		return nil, err
	}

	switch dataSource.Type {
	case dbqprep.DataSourceTypeClickhouse:
		connection, err := cnn.NewClickhouseConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create clickhouse connection: %w", err)
		}
		return connectors.NewClickhouseDbqConnector(connection, logger), nil
	case dbqprep.DataSourceTypePostgresql:
		connection, err := cnn.NewPostgresqlConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql connection: %w", err)
		}
		return connectors.NewPostgresqlDbqConnector(connection, logger), nil
	default:
		connection, err := cnn.NewMysqlConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql connection: %w", err)
		}
		return connectors.NewMysqlDbqConnector(connection, logger), nil
	}
}

// NewValidationTarget opens a connection to the data source and binds it to
// a single dataset. The caller owns the returned target and must Close it.
func NewValidationTarget(dataSource *dbqprep.DataSource, dataset string, where string, logger *slog.Logger) (adapters.WarehouseTarget, error) {
	if err := dataSource.Type.Validate(); err != nil {
		return nil, err
	}

	switch dataSource.Type {
	case dbqprep.DataSourceTypeClickhouse:
		connection, err := cnn.NewClickhouseConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create clickhouse connection: %w", err)
		}
		target, err := adapters.NewClickhouseTarget(connection, dataset, where, logger)
		if err != nil {
			_ = connection.Close()
			return nil, err
		}
		return target, nil
	case dbqprep.DataSourceTypePostgresql:
		connection, err := cnn.NewPostgresqlConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgresql connection: %w", err)
		}
		target, err := adapters.NewPostgresqlTarget(connection, dataset, where, logger)
		if err != nil {
			_ = connection.Close()
			return nil, err
		}
		return target, nil
	default:
		connection, err := cnn.NewMysqlConnection(dataSource.Configuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql connection: %w", err)
		}
		target, err := adapters.NewMysqlTarget(connection, dataset, where, logger)
		if err != nil {
			_ = connection.Close()
			return nil, err
		}
		return target, nil
	}
}

func NewDbqProfiler(logger *slog.Logger) dbqprep.DbqDataProfiler {
	return profilers.NewBaseProfiler(logger)
}

func NewDbqValidator(cfg dbqprep.ValidatorConfig, logger *slog.Logger) dbqprep.DbqDataValidator {
	return dbqprep.NewDbqDataValidator(logger, cfg)
}
