package es

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

const postgresUniqueViolation = "23505"

// PostgresDialect for PostgreSQL
type PostgresDialect struct{}

// NewPostgresDriver creates a SQLDriver for PostgreSQL
func NewPostgresDriver(db *sql.DB, table string) *SQLDriver {
	return &SQLDriver{
		DB:      db,
		Table:   table,
		Dialect: PostgresDialect{},
	}
}

// MustConnectPostgres opens and pings a PostgreSQL database
func MustConnectPostgres(url string) *sql.DB {
	db, err := sql.Open("postgres", url)
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	err = db.Ping()
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	db.SetConnMaxLifetime(time.Hour)
	return db
}

// Placeholder implements Dialect
func (PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// QuoteIdentifier implements Dialect
func (PostgresDialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// IsConflict implements Dialect
func (PostgresDialect) IsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == postgresUniqueViolation
	}
	return false
}

// IsDuplicateEventID implements Dialect
func (PostgresDialect) IsDuplicateEventID(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == postgresUniqueViolation && strings.Contains(pqErr.Constraint+pqErr.Message, "event_id")
	}
	return false
}

// TxOptions implements Dialect
func (PostgresDialect) TxOptions() *sql.TxOptions {
	return nil
}

// Name implements Dialect
func (PostgresDialect) Name() string {
	return "postgres"
}
