package es

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteDialect for SQLite, through the pure Go modernc driver
type SQLiteDialect struct{}

// NewSQLiteDriver creates a SQLDriver for SQLite
func NewSQLiteDriver(db *sql.DB, table string) *SQLDriver {
	return &SQLDriver{
		DB:      db,
		Table:   table,
		Dialect: SQLiteDialect{},
	}
}

// MustConnectSQLite opens a SQLite database file, waiting on locks held by other connections
func MustConnectSQLite(path string) *sql.DB {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path))
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	err = db.Ping()
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	return db
}

// Placeholder implements Dialect
func (SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// QuoteIdentifier implements Dialect
func (SQLiteDialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// IsConflict implements Dialect
func (SQLiteDialect) IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	// without extended result codes only the message tells constraints apart
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateEventID implements Dialect
func (d SQLiteDialect) IsDuplicateEventID(err error) bool {
	return d.IsConflict(err) && strings.Contains(err.Error(), ".event_id")
}

// TxOptions implements Dialect
func (SQLiteDialect) TxOptions() *sql.TxOptions {
	return nil
}

// Name implements Dialect
func (SQLiteDialect) Name() string {
	return "sqlite"
}
