package es

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// Store implementation
type Store struct {
	driver Driver
}

// NewStore creates a new store
func NewStore(driver Driver) *Store {
	return &Store{
		driver: driver,
	}
}

// Append stores events for an aggregate
func (s *Store) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.driver.Append(ctx, aggregateID, expected, events)
}

// Read opens an iterator over the events of an aggregate
func (s *Store) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	return s.driver.Read(ctx, aggregateID)
}

// ReadAll opens an iterator over every event of the store
func (s *Store) ReadAll(ctx context.Context) (Iterator, error) {
	return s.driver.ReadAll(ctx)
}

// Events returns the events of an aggregate as a lazy sequence. Stopping early closes
// the underlying iterator. An error ending the stream is yielded as the last pair.
func (s *Store) Events(ctx context.Context, aggregateID uuid.UUID) iter.Seq2[*Event, error] {
	return sequence(func() (Iterator, error) {
		return s.driver.Read(ctx, aggregateID)
	})
}

// AllEvents returns every event of the store as a lazy sequence
func (s *Store) AllEvents(ctx context.Context) iter.Seq2[*Event, error] {
	return sequence(func() (Iterator, error) {
		return s.driver.ReadAll(ctx)
	})
}

// Load loads aggregate by ID
func (s *Store) Load(ctx context.Context, aggregateID uuid.UUID, aggregate Aggregate) error {
	if aggregateID == uuid.Nil {
		return nil
	}

	for event, err := range s.Events(ctx, aggregateID) {
		if err != nil {
			return fmt.Errorf("failed to load aggregate %s: %w", aggregateID, err)
		}
		aggregate.Reduce(event.Type, event.Payload)
		aggregate.setVersion(event.Version)
	}
	return nil
}

// Save saves aggregate events. The version of the first event determines the
// version the aggregate is expected to be at.
func (s *Store) Save(ctx context.Context, appliedEvents []*AppliedEvent) error {
	if len(appliedEvents) == 0 {
		return nil
	}

	first := appliedEvents[0].Event
	if !first.AggregateID.Valid {
		return fmt.Errorf("applied events have no aggregate ID")
	}
	events := []*Event{}
	for _, appliedEvent := range appliedEvents {
		if appliedEvent.Event.AggregateID != first.AggregateID {
			return fmt.Errorf("applied events belong to different aggregates")
		}
		events = append(events, appliedEvent.Event)
	}

	expected := first.Version - 1
	if expected < 0 {
		expected = 0
	}
	return s.driver.Append(ctx, first.AggregateID.UUID, Exact(expected), events)
}

func sequence(open func() (Iterator, error)) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		it, err := open()
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()

		for it.Next() {
			if !yield(it.Current(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}
