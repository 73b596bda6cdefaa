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

	_ "github.com/lib/pq"

	"github.com/DataBridgeTech/dbqprep"
)

func NewPostgresqlConnection(connectionCfg dbqprep.ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresqlDSN(connectionCfg))
	if err != nil {
		return nil, err
	}

	size := poolSize(connectionCfg)
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	return db, nil
}

func postgresqlDSN(connectionCfg dbqprep.ConnectionConfig) string {
	port := connectionCfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		connectionCfg.Host, port, connectionCfg.Username, connectionCfg.Password, connectionCfg.Database)
}
