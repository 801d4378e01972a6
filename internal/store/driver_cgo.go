//go:build cgo_sqlite

package store

// Built with the cgo_sqlite tag the store uses mattn/go-sqlite3, which is
// faster under write-heavy load but needs a C compiler.
//
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the database/sql driver used for DB_DRIVER=sqlite
const SQLiteDriverName = "sqlite3"

// sqliteConnParams are applied by the driver on every new connection.
const sqliteConnParams = "_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL"
