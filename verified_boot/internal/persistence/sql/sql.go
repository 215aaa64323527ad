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

// Package sql provides space persistence backed by a SQL database.
// The statements are portable between SQLite and MySQL.
package sql

import (
	"database/sql"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewPersistence returns a persistence object that is backed by the SQL database.
func NewPersistence(db *sql.DB) persistence.SpacePersistence {
	return &sqlSpacePersistence{
		db: db,
	}
}

type sqlSpacePersistence struct {
	db *sql.DB
}

func (p *sqlSpacePersistence) Init() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS spaces (
		name VARCHAR(64) PRIMARY KEY,
		data BLOB
		)`)
	return err
}

func (p *sqlSpacePersistence) Spaces() ([]string, error) {
	rows, err := p.db.Query("SELECT name FROM spaces ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spaces []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		spaces = append(spaces, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return spaces, nil
}

func (p *sqlSpacePersistence) ReadOps(space string) (persistence.SpaceReadOps, error) {
	return &reader{
		space: space,
		db:    p.db,
	}, nil
}

func (p *sqlSpacePersistence) WriteOps(space string) (persistence.SpaceWriteOps, error) {
	tx, err := p.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("tx.Begin(): %v", err)
	}
	return &writer{
		space: space,
		tx:    tx,
	}, nil
}

type reader struct {
	space string
	db    *sql.DB
}

func (r *reader) Get() ([]byte, error) {
	return getSpace(r.db.QueryRow, r.space)
}

type writer struct {
	space string
	tx    *sql.Tx
}

func (w *writer) Get() ([]byte, error) {
	return getSpace(w.tx.QueryRow, w.space)
}

func (w *writer) Set(data []byte) error {
	if data == nil {
		data = []byte{}
	}
	// REPLACE INTO is understood by both SQLite and MySQL.
	if _, err := w.tx.Exec(`REPLACE INTO spaces (name, data) VALUES (?, ?)`, w.space, data); err != nil {
		return fmt.Errorf("Exec(): %v", err)
	}
	return w.tx.Commit()
}

func (w *writer) Close() {
	_ = w.tx.Rollback()
}

func getSpace(queryRow func(query string, args ...interface{}) *sql.Row, space string) ([]byte, error) {
	row := queryRow("SELECT data FROM spaces WHERE name = ?", space)
	if err := row.Err(); err != nil {
		return nil, err
	}
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, status.Errorf(codes.NotFound, "no data in space %q", space)
		}
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}
