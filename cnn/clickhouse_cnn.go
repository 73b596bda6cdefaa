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

package cnn

import (
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/DataBridgeTech/dbqprep"
)

func NewClickhouseConnection(connectionCfg dbqprep.ConnectionConfig) (driver.Conn, error) {
	return clickhouse.Open(clickhouseOptions(connectionCfg))
}

func clickhouseOptions(connectionCfg dbqprep.ConnectionConfig) *clickhouse.Options {
	addr := connectionCfg.Host
	if connectionCfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", connectionCfg.Host, connectionCfg.Port)
	}

	size := poolSize(connectionCfg)
	return &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: connectionCfg.Database,
			Username: connectionCfg.Username,
			Password: connectionCfg.Password,
		},
		MaxOpenConns: size,
		MaxIdleConns: size,
	}
}
