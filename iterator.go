package es

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Iterator is a lazy, forward-only, single-consumer cursor over reconstituted events.
//
//	it, err := store.Read(ctx, id)
//	...
//	defer it.Close()
//	for it.Next() {
//		event := it.Current()
//	}
//	if err := it.Err(); err != nil { ... }
//
// A record which cannot be reconstituted ends the iteration; Err then returns a
// *MalformedEventError so truncation can be told apart from the natural end of a stream.
type Iterator interface {
	// Next advances to the next event and reports whether one is available
	Next() bool
	// Current returns the current event or nil
	Current() *Event
	// Key returns the current event ID or an empty string
	Key() string
	// Valid reports whether the iterator holds an event
	Valid() bool
	// Rewind restarts iteration where the backend supports it and reports Valid
	Rewind() bool
	// Err returns the error which ended the iteration, if any
	Err() error
	// Close releases the underlying cursor. It is safe to call more than once.
	Close() error
}

// RawCursor is a forward-only source of persisted events. Fetch returns nil without an
// error once the source is exhausted.
type RawCursor interface {
	Fetch(ctx context.Context) (*RawEvent, error)
	Close() error
}

// Rewinder is implemented by cursors which can restart from their first record.
type Rewinder interface {
	Rewind(ctx context.Context) error
}

type iteratorState int

const (
	notStarted iteratorState = iota
	positioned
	exhausted
)

type iterator struct {
	ctx           context.Context
	cursor        RawCursor
	reconstitutor *Reconstitutor
	state         iteratorState
	event         *Event
	primed        bool
	closed        bool
	err           error
}

// NewIterator wraps a raw cursor. The iterator owns the cursor and closes it once
// exhausted or closed.
func NewIterator(ctx context.Context, cursor RawCursor, reconstitutor *Reconstitutor) Iterator {
	if reconstitutor == nil {
		reconstitutor = DefaultReconstitutor()
	}
	return &iterator{
		ctx:           ctx,
		cursor:        cursor,
		reconstitutor: reconstitutor,
	}
}

func (it *iterator) Next() bool {
	if it.state == exhausted {
		return false
	}
	if it.primed {
		it.primed = false
		return it.Valid()
	}
	return it.advance()
}

func (it *iterator) Current() *Event {
	return it.event
}

func (it *iterator) Key() string {
	if it.event == nil {
		return ""
	}
	return it.event.ID
}

func (it *iterator) Valid() bool {
	return it.event != nil
}

func (it *iterator) Rewind() bool {
	if it.state == exhausted {
		return false
	}
	rewinder, ok := it.cursor.(Rewinder)
	if !ok {
		return it.Valid()
	}
	if err := rewinder.Rewind(it.ctx); err != nil {
		it.err = err
		return it.invalidate()
	}
	it.state = notStarted
	it.event = nil
	it.primed = it.advance()
	return it.Valid()
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close() error {
	it.state = exhausted
	it.event = nil
	it.primed = false
	return it.release()
}

func (it *iterator) advance() bool {
	raw, err := it.cursor.Fetch(it.ctx)
	if err != nil {
		it.err = err
		return it.invalidate()
	}
	if raw == nil {
		return it.invalidate()
	}

	event, err := it.reconstitutor.Reconstitute(raw)
	if err != nil {
		log.
			Warn().
			Err(err).
			Str("EventID", raw.ID).
			Str("EventType", raw.Type).
			Int64("EventVersion", raw.Version).
			Msg("Stopped reading stream at malformed event")
		it.err = err
		return it.invalidate()
	}

	it.event = event
	it.state = positioned
	return true
}

func (it *iterator) invalidate() bool {
	it.event = nil
	it.state = exhausted
	if err := it.release(); err != nil && it.err == nil {
		it.err = err
	}
	return false
}

func (it *iterator) release() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.cursor.Close()
}

// Collect drains the iterator and closes it
func Collect(it Iterator) ([]*Event, error) {
	defer it.Close()

	var events []*Event
	for it.Next() {
		events = append(events, it.Current())
	}
	return events, it.Err()
}

// IsTruncated reports whether err ended a stream at a malformed record
func IsTruncated(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}
