package shared

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Driver string
}

// Rebind rewrites "?" placeholders into the driver's native placeholder style.
//
// Queries in this module never contain literal question marks, so a plain scan is enough.
func (d Dialect) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available.
func (d Dialect) SupportsRowLocks() bool {
	return d.Driver == DriverPostgres
}

// NewDatabase opens a connection for the given driver ("sqlite3" or "pgx").
//
// For sqlite3 the dsn is a file path and can be ":memory:" for an in-memory database.
// File databases are opened with immediate transaction locking so a write transaction holds the database lock from BEGIN.
// Returns an open database connection or an error if connection fails.
func NewDatabase(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_txlock=immediate&_foreign_keys=on"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
//
// An in-memory SQLite database only lives as long as its connection, so callers using ":memory:" should keep both values at 1.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}
