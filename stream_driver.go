package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/indebted-modules/es/v2/feed"
)

// aggregateIDKey is the metadata entry which carries aggregate identity through the
// stream service, since its events have no aggregate field of their own.
const aggregateIDKey = "$aggregateId"

// StreamDriver stores each aggregate in its own stream of a remote stream service
type StreamDriver struct {
	Client        *feed.Client
	Category      string
	AllStream     string
	Reconstitutor *Reconstitutor
}

// NewStreamDriver creates a StreamDriver for the aggregates of a category
func NewStreamDriver(client *feed.Client, category string) *StreamDriver {
	return &StreamDriver{
		Client:   client,
		Category: category,
	}
}

// Read opens the aggregate's stream
func (d *StreamDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	return d.open(ctx, d.streamName(aggregateID)), nil
}

// ReadAll opens the stream which links every event of the category
func (d *StreamDriver) ReadAll(ctx context.Context) (Iterator, error) {
	stream := d.AllStream
	if stream == "" {
		stream = "$ce-" + d.Category
	}
	return d.open(ctx, stream), nil
}

func (d *StreamDriver) open(ctx context.Context, stream string) Iterator {
	return NewIterator(ctx, &feedCursor{feed: d.Client.Open(stream)}, d.Reconstitutor)
}

// Append posts events to the aggregate's stream. Stream event numbers start at zero,
// so version n is event number n-1. Versions are taken from the number the service
// reports for the first event; without one only aggregate identity is set.
func (d *StreamDriver) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	expectedNumber := feed.ExpectedAny
	switch {
	case expected.IsNoStream(), expected.IsExact() && expected.Value() == 0:
		expectedNumber = feed.ExpectedNoStream
	case expected.IsExact():
		expectedNumber = expected.Value() - 1
	}

	proposed := make([]feed.ProposedEvent, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode data of event %s: %w", event.ID, err)
		}
		metadata := map[string]interface{}{}
		for k, v := range event.Metadata {
			metadata[k] = v
		}
		metadata[aggregateIDKey] = aggregateID.String()
		rawMetadata, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of event %s: %w", event.ID, err)
		}

		proposed = append(proposed, feed.ProposedEvent{
			EventID:   event.ID,
			EventType: event.Type,
			Data:      data,
			Metadata:  rawMetadata,
		})
	}

	first, err := d.Client.Append(ctx, d.streamName(aggregateID), expectedNumber, proposed)
	if errors.Is(err, feed.ErrWrongExpectedVersion) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	if err != nil {
		return err
	}

	if first < 0 {
		for _, event := range events {
			event.AggregateID = uuid.NullUUID{UUID: aggregateID, Valid: true}
		}
		return nil
	}
	stamp(aggregateID, first, events)
	return nil
}

func (d *StreamDriver) streamName(aggregateID uuid.UUID) string {
	return d.Category + "-" + aggregateID.String()
}

type feedCursor struct {
	feed *feed.Feed
}

func (c *feedCursor) Fetch(ctx context.Context) (*RawEvent, error) {
	entry, err := c.feed.Next(ctx)
	if err != nil || entry == nil {
		return nil, err
	}

	raw := &RawEvent{
		ID:       entry.EventID,
		Type:     entry.EventType,
		Version:  entry.EventNumber + 1,
		Occurred: entry.Updated.UTC(),
		Data:     entry.Body(),
	}
	raw.AggregateID, raw.Metadata, err = splitAggregateID(entry.Metadata())
	if err != nil {
		return nil, malformed(raw, err)
	}
	return raw, nil
}

func (c *feedCursor) Rewind(_ context.Context) error {
	c.feed.Rewind()
	return nil
}

func (c *feedCursor) Close() error {
	return nil
}

// splitAggregateID removes the aggregate identity entry from stream metadata
func splitAggregateID(metadata []byte) (string, []byte, error) {
	if isNull(metadata) {
		return "", nil, nil
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return "", nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	value, ok := doc[aggregateIDKey]
	if !ok || value == "" {
		// an empty identity stays in metadata like any other entry
		return "", metadata, nil
	}
	delete(doc, aggregateIDKey)

	aggregateID, ok := value.(string)
	if !ok {
		return "", nil, fmt.Errorf("metadata %s is not a string", aggregateIDKey)
	}

	rest, err := encodeDocument(doc)
	if err != nil {
		return "", nil, err
	}
	return aggregateID, rest, nil
}
