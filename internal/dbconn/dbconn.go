// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dbconn opens the SQLite databases backing the hot-cache,
// aggregator and registry stores.
package dbconn

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var registerOnce sync.Once

// Open opens (creating if needed) a SQLite database. SQLite does not
// multithread; more than one open connection would just mean waiting
// for locks, so the pool is pinned to a single connection. Each store
// additionally serializes access with its own mutex, which is what
// gives the per-instance single-threaded execution the callers rely
// on.
func Open(path string) (*sqlx.DB, error) {
	registerOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
	})

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
