package es

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInMemoryDriver creates a new InMemoryDriver
func NewInMemoryDriver() *InMemoryDriver {
	return &InMemoryDriver{
		sequence: 0,
		streams:  map[uuid.UUID][]*RawEvent{},
		clock:    time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// InMemoryDriver implementation for unit testing. Events are kept in their persisted
// JSON form so reads go through the same reconstitution as every other backend.
type InMemoryDriver struct {
	mu            sync.RWMutex
	sequence      int64
	streams       map[uuid.UUID][]*RawEvent
	all           []*RawEvent
	clock         time.Time
	Reconstitutor *Reconstitutor
}

// Read all events by aggregate ID
func (s *InMemoryDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	s.mu.RLock()
	records := append([]*RawEvent(nil), s.streams[aggregateID]...)
	s.mu.RUnlock()

	return NewIterator(ctx, &sliceCursor{records: records}, s.Reconstitutor), nil
}

// ReadAll events in append order
func (s *InMemoryDriver) ReadAll(ctx context.Context) (Iterator, error) {
	s.mu.RLock()
	records := append([]*RawEvent(nil), s.all...)
	s.mu.RUnlock()

	return NewIterator(ctx, &sliceCursor{records: records}, s.Reconstitutor), nil
}

// Append all events in memory. Either every event is stored or none is.
func (s *InMemoryDriver) Append(_ context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[aggregateID]))
	if err := expected.Check(current); err != nil {
		return err
	}

	newSequence := s.sequence
	newClock := s.clock
	records := make([]*RawEvent, 0, len(events))
	for i, event := range events {
		data, err := encodeDocument(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode data of event %s: %w", event.ID, err)
		}
		metadata, err := encodeDocument(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of event %s: %w", event.ID, err)
		}

		newSequence++
		id := event.ID
		if id == "" {
			id = strconv.FormatInt(newSequence, 10)
		}
		records = append(records, &RawEvent{
			ID:          id,
			Type:        event.Type,
			Version:     current + int64(i) + 1,
			Occurred:    newClock,
			AggregateID: aggregateID.String(),
			Data:        data,
			Metadata:    metadata,
		})
		newClock = newClock.Add(1 * time.Second)
	}

	stamp(aggregateID, current, events)
	for i, event := range events {
		event.ID = records[i].ID
		event.Occurred = records[i].Occurred
	}

	s.streams[aggregateID] = append(s.streams[aggregateID], records...)
	s.all = append(s.all, records...)
	s.sequence = newSequence
	s.clock = newClock
	return nil
}

// Inject stores a raw record as is, bypassing encoding and version checks. It lets
// tests replay histories written by older code.
func (s *InMemoryDriver) Inject(raw *RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *raw
	if id, err := uuid.Parse(raw.AggregateID); err == nil {
		s.streams[id] = append(s.streams[id], &copied)
	}
	s.all = append(s.all, &copied)
}

// sliceCursor iterates over a snapshot of records
type sliceCursor struct {
	records []*RawEvent
	pos     int
}

func (c *sliceCursor) Fetch(_ context.Context) (*RawEvent, error) {
	if c.pos >= len(c.records) {
		return nil, nil
	}
	raw := *c.records[c.pos]
	c.pos++
	return &raw, nil
}

func (c *sliceCursor) Rewind(_ context.Context) error {
	c.pos = 0
	return nil
}

func (c *sliceCursor) Close() error {
	return nil
}
