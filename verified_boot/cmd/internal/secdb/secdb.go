// Copyright 2023 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secdb opens the database holding a device's secure storage spaces.
package secdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence/inmemory"
	sqlp "github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence/sql"
	"github.com/golang/glog"

	_ "github.com/go-sql-driver/mysql" // Load drivers for mysql
	_ "github.com/mattn/go-sqlite3"    // Load drivers for sqlite3
)

// Open connects to the spaces database. The driver "memory" keeps the spaces
// in memory and ignores dsn. The returned function closes the database.
func Open(driver, dsn string) (persistence.SpacePersistence, func() error, error) {
	if driver == "memory" {
		p := inmemory.NewPersistence()
		return p, func() error { return nil }, p.Init()
	}
	if len(dsn) == 0 {
		return nil, nil, errors.New("secdata_db_dsn is required")
	}
	glog.Infof("Connecting to %s DB at %q", driver, dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	p := sqlp.NewPersistence(db)
	if err := p.Init(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to init spaces table: %w", err)
	}
	return p, db.Close, nil
}
