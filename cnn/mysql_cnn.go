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
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/DataBridgeTech/dbqprep"
)

func NewMysqlConnection(connectionCfg dbqprep.ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", mysqlDSN(connectionCfg))
	if err != nil {
		return nil, err
	}

	size := poolSize(connectionCfg)
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	return db, nil
}

func mysqlDSN(connectionCfg dbqprep.ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = connectionCfg.Username
	cfg.Passwd = connectionCfg.Password
	cfg.Net = "tcp"
	cfg.Addr = connectionCfg.Host
	if connectionCfg.Port > 0 {
		cfg.Addr = fmt.Sprintf("%s:%d", connectionCfg.Host, connectionCfg.Port)
	}
	cfg.DBName = connectionCfg.Database
	return cfg.FormatDSN()
}
