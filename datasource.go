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

package dbqprep

import "fmt"

type DataSourceType string

const (
	DataSourceTypeClickhouse DataSourceType = "clickhouse"
	DataSourceTypePostgresql DataSourceType = "postgresql"
	DataSourceTypeMysql      DataSourceType = "mysql"
)

// DataSource describes a warehouse a dataset can be validated in place.
type DataSource struct {
	ID            string           `yaml:"id" json:"id"`
	Type          DataSourceType   `yaml:"type" json:"type"`
	Configuration ConnectionConfig `yaml:"configuration" json:"configuration"`
}

// ConnectionConfig holds the connection parameters of a data source.
type ConnectionConfig struct {
	Host     string `yaml:"host" json:"host" env:"HOST"`
	Port     int    `yaml:"port" json:"port" env:"PORT"`
	Username string `yaml:"username" json:"username" env:"USERNAME"`
	Password string `yaml:"password" json:"-" env:"PASSWORD"`
	Database string `yaml:"database" json:"database" env:"DATABASE"`
	PoolSize int    `yaml:"pool_size,omitempty" json:"pool_size,omitempty" env:"POOL_SIZE"`
}

func (t DataSourceType) Validate() error {
	switch t {
	case DataSourceTypeClickhouse, DataSourceTypePostgresql, DataSourceTypeMysql:
		return nil
	}
	return fmt.Errorf("unsupported data source type: %s", t)
}
