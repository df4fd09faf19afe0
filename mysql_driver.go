package es

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

const (
	mysqlDuplicateEntry = 1062
	mysqlLockDeadlock   = 1213
)

// MySQLDialect for MySQL and MariaDB
type MySQLDialect struct{}

// NewMySQLDriver creates a SQLDriver for MySQL
func NewMySQLDriver(client *sql.DB, tableName string) *SQLDriver {
	return &SQLDriver{
		DB:      client,
		Table:   tableName,
		Dialect: MySQLDialect{},
	}
}

// MustConnectMySQL .
func MustConnectMySQL(dataSourceName string) *sql.DB {
	client, err := sql.Open("mysql", dataSourceName)
	if err != nil {
		log.
			Fatal().
			Err(err).
			Msgf("Failed to connect")
	}
	return client
}

// Placeholder implements Dialect
func (MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// QuoteIdentifier implements Dialect
func (MySQLDialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = "`" + strings.ReplaceAll(part, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// IsConflict implements Dialect. InnoDB may resolve inserts racing for the same
// key range with a deadlock instead of a duplicate entry.
func (MySQLDialect) IsConflict(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry || mysqlErr.Number == mysqlLockDeadlock
	}
	return false
}

// IsDuplicateEventID implements Dialect
func (MySQLDialect) IsDuplicateEventID(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry && strings.Contains(mysqlErr.Message, "event_id")
	}
	return false
}

// TxOptions implements Dialect. The version check is a plain consistent read; the
// unique key on (aggregate_id, event_version) rejects the losing insert.
func (MySQLDialect) TxOptions() *sql.TxOptions {
	return nil
}

// Name implements Dialect
func (MySQLDialect) Name() string {
	return "mysql"
}
