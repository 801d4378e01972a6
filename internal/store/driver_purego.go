//go:build !cgo_sqlite

package store

// Default build: pure Go SQLite, no C toolchain needed.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

// SQLiteDriverName is the database/sql driver used for DB_DRIVER=sqlite
const SQLiteDriverName = "sqlite"

// sqliteConnParams are applied by the driver on every new connection.
const sqliteConnParams = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
