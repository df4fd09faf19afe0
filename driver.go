package es

import (
	"context"

	"github.com/google/uuid"
)

// Driver is the backend abstraction behind a Store. Read and ReadAll open a new
// iterator per call; drivers keep no per-call state.
type Driver interface {
	// Read opens an iterator over the events of one aggregate, in version order
	Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error)
	// ReadAll opens an iterator over every event, in append order
	ReadAll(ctx context.Context) (Iterator, error)
	// Append stores events for an aggregate, assigning their versions.
	// It returns ErrConcurrencyConflict when expected does not hold.
	Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error
}

// stamp assigns aggregate identity and consecutive versions after current
func stamp(aggregateID uuid.UUID, current int64, events []*Event) {
	for i, event := range events {
		event.AggregateID = uuid.NullUUID{UUID: aggregateID, Valid: true}
		event.Version = current + int64(i) + 1
	}
}
