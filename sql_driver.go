package es

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect adapts the SQL driver to a database
type Dialect interface {
	// Placeholder returns the bind parameter for the n-th argument, starting at 1
	Placeholder(n int) string
	// QuoteIdentifier quotes a possibly schema-qualified table name
	QuoteIdentifier(name string) string
	// IsConflict reports whether err means a concurrent append took the same versions
	IsConflict(err error) bool
	// IsDuplicateEventID reports whether err rejects an event id which is already stored
	IsDuplicateEventID(err error) bool
	// TxOptions returns the options of append transactions
	TxOptions() *sql.TxOptions
	// Name returns the dialect name used by migrations
	Name() string
}

// DefaultTable is the events table created by the migrations package
const DefaultTable = "events"

// SQLDriver stores events in a relational table
type SQLDriver struct {
	DB            *sql.DB
	Table         string
	Dialect       Dialect
	Reconstitutor *Reconstitutor
}

const selectColumns = `event_id, event_name, event_version, event_date, aggregate_id, data, metadata`

// Read all events by aggregate ID
func (d *SQLDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE aggregate_id = %s
		ORDER BY event_version
	`, selectColumns, d.tableName(), d.Dialect.Placeholder(1))

	return d.query(ctx, query, aggregateID.String())
}

// ReadAll events in append order
func (d *SQLDriver) ReadAll(ctx context.Context) (Iterator, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY position
	`, selectColumns, d.tableName())

	return d.query(ctx, query)
}

func (d *SQLDriver) query(ctx context.Context, query string, args ...interface{}) (Iterator, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return NewIterator(ctx, &sqlCursor{rows: rows}, d.Reconstitutor), nil
}

// Append events in a single transaction
func (d *SQLDriver) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, d.Dialect.TxOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(event_version), 0)
		FROM %s
		WHERE aggregate_id = %s
	`, d.tableName(), d.Dialect.Placeholder(1)), aggregateID.String()).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to check current version: %w", err)
	}
	if err := expected.Check(current); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			event_id,
			event_name,
			event_version,
			aggregate_id,
			data,
			metadata
		) VALUES(%s)
	`, d.tableName(), d.placeholders(6)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	stamp(aggregateID, current, events)
	for _, event := range events {
		data, err := encodeDocument(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode data of event %s: %w", event.ID, err)
		}
		metadata, err := encodeDocument(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of event %s: %w", event.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			event.ID,
			event.Type,
			event.Version,
			aggregateID.String(),
			nullableText(data),
			nullableText(metadata),
		)
		if err != nil {
			if d.Dialect.IsDuplicateEventID(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
			}
			if d.Dialect.IsConflict(err) {
				return conflict("version %d of aggregate %s already exists", event.Version, aggregateID)
			}
			return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		if d.Dialect.IsDuplicateEventID(err) {
			return fmt.Errorf("%w: aggregate %s", ErrDuplicateEvent, aggregateID)
		}
		if d.Dialect.IsConflict(err) {
			return conflict("aggregate %s was appended concurrently", aggregateID)
		}
		return fmt.Errorf("failed to commit events: %w", err)
	}

	return nil
}

func (d *SQLDriver) tableName() string {
	table := d.Table
	if table == "" {
		table = DefaultTable
	}
	return d.Dialect.QuoteIdentifier(table)
}

func (d *SQLDriver) placeholders(n int) string {
	params := make([]string, n)
	for i := range params {
		params[i] = d.Dialect.Placeholder(i + 1)
	}
	return strings.Join(params, ", ")
}

// JSON columns are bound as text so every database driver sends them as documents
func nullableText(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

// sqlCursor wraps a forward-only result set; it cannot be rewound.
type sqlCursor struct {
	rows *sql.Rows
}

func (c *sqlCursor) Fetch(_ context.Context) (*RawEvent, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read events: %w", err)
		}
		return nil, nil
	}

	var raw RawEvent
	var eventDate interface{}
	var aggregateID sql.NullString
	var data, metadata []byte
	err := c.rows.Scan(
		&raw.ID,
		&raw.Type,
		&raw.Version,
		&eventDate,
		&aggregateID,
		&data,
		&metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	raw.AggregateID = aggregateID.String
	raw.Data = data
	raw.Metadata = metadata
	raw.Occurred, err = parseEventDate(eventDate)
	if err != nil {
		return nil, malformed(&raw, err)
	}
	return &raw, nil
}

func (c *sqlCursor) Close() error {
	return c.rows.Close()
}

var eventDateLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseEventDate accepts the representations database drivers return for timestamps
func parseEventDate(src interface{}) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		return parseEventDate(string(v))
	case string:
		for _, layout := range eventDateLayouts {
			t, err := time.Parse(layout, v)
			if err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse event date '%s'", v)
	default:
		return time.Time{}, fmt.Errorf("unsupported event date type %T", src)
	}
}
