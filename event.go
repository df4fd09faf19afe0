package es

import (
	"time"

	"github.com/google/uuid"
	ids "github.com/indebted-modules/uuid"
)

// EventPayload interface
type EventPayload interface {
	PayloadType() string
}

// Event model
type Event struct {
	ID          string
	Type        string
	Version     int64
	Occurred    time.Time
	AggregateID uuid.NullUUID
	Payload     interface{}
	Metadata    map[string]interface{}
}

// NewEvent creates a new event
func NewEvent(aggregateID uuid.UUID, payload EventPayload) *Event {
	return &Event{
		ID:          ids.NewID(),
		Type:        payload.PayloadType(),
		AggregateID: uuid.NullUUID{UUID: aggregateID, Valid: aggregateID != uuid.Nil},
		Payload:     payload,
		Occurred:    time.Now(),
		Metadata:    map[string]interface{}{},
	}
}

// WithMetadata sets a metadata entry and returns the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// RawEvent holds the persisted fields of an event as a backend returns them.
// AggregateID is empty for events which do not belong to an aggregate; Data and
// Metadata are JSON documents or nil.
type RawEvent struct {
	ID          string
	Type        string
	Version     int64
	Occurred    time.Time
	AggregateID string
	Data        []byte
	Metadata    []byte
}
