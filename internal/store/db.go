package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated
	ErrConflict = errors.New("already exists")
	// ErrInUse is returned when deleting a row that other rows still reference
	ErrInUse = errors.New("still referenced")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the few SQL differences between SQLite and PostgreSQL.
type dialect struct {
	name      string
	dollar    bool   // $1 placeholders instead of ?
	forUpdate string // row lock suffix for SELECT
}

var (
	sqliteDialect   = dialect{name: DriverSQLite}
	postgresDialect = dialect{name: DriverPostgres, dollar: true, forUpdate: " FOR UPDATE"}
)

// rebind rewrites ? placeholders for dialects that need positional ones.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read/write the application performs. The same methods run
// against the pool or inside a transaction started by WithTx.
type Queries struct {
	q querier
	d dialect
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.d.rebind(query), args...)
}

type Store struct {
	*Queries
	DB     *sql.DB
	driver string
}

// NewStore opens and pings the database. driver is "sqlite" (default) or "postgres".
func NewStore(driver, dataSourceName string) (*Store, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		d = sqliteDialect
		db, err = openSQLite(dataSourceName)
	case DriverPostgres:
		d = postgresDialect
		db, err = openPostgres(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Debug("Database opened", "driver", driver)
	return &Store{Queries: &Queries{q: db, d: d}, DB: db, driver: driver}, nil
}

// sqliteDSN appends the per-connection pragmas to path.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqliteConnParams
}

func openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open(SQLiteDriverName, sqliteDSN(dsn))
	if err != nil {
		return nil, err
	}

	// One connection: SQLite has a single writer, and ":memory:" databases live
	// and die with their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)
	return db, nil
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// WithTx runs fn inside a single transaction. The transaction commits only if
// fn returns nil; any error or panic rolls every write back.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Queries{q: tx, d: s.d}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation matches the unique-constraint errors of every supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// maxInListArgs caps the bind variables of one IN (...) clause, well under the
// limits of both SQLite (32766) and PostgreSQL (65535).
const maxInListArgs = 500

// batches splits ids into slices of at most maxInListArgs.
func batches(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > maxInListArgs {
		out = append(out, ids[:maxInListArgs])
		ids = ids[maxInListArgs:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// inList returns "?, ?, ?" and the matching args for an IN (...) clause.
func inList(ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}
