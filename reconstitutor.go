package es

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Reconstitutor turns raw persisted events into typed events, running upgraders before
// falling back to the registered payload type.
type Reconstitutor struct {
	registry  *Registry
	upgraders *Upgraders
}

// NewReconstitutor creates a reconstitutor over the given registry and upgraders
func NewReconstitutor(registry *Registry, upgraders *Upgraders) *Reconstitutor {
	if upgraders == nil {
		upgraders = NewUpgraders()
	}
	return &Reconstitutor{
		registry:  registry,
		upgraders: upgraders,
	}
}

// DefaultReconstitutor uses the process-wide registry and upgraders. Every driver
// falls back to it so all backends replay events identically.
func DefaultReconstitutor() *Reconstitutor {
	return NewReconstitutor(registry, upgraders)
}

// Reconstitute builds the event for raw. Any failure, including a panicking upgrader,
// is reported as a *MalformedEventError and no event is returned.
func (r *Reconstitutor) Reconstitute(raw *RawEvent) (event *Event, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			event = nil
			err = malformed(raw, fmt.Errorf("panic: %v", rec))
		}
	}()

	record, err := decodeRecord(raw)
	if err != nil {
		return nil, malformed(raw, err)
	}

	for _, upgrader := range r.upgraders.For(record.Type) {
		upgraded, err := upgrader.Upgrade(record)
		if err != nil {
			return nil, malformed(raw, fmt.Errorf("upgrade failed: %w", err))
		}
		if upgraded == nil {
			continue
		}
		if upgraded.Type == "" || upgraded.Payload == nil {
			return nil, malformed(raw, fmt.Errorf("upgrade produced an incomplete event"))
		}
		return upgraded, nil
	}

	payload, err := r.registry.ResolveType(record.Type)
	if err != nil {
		return nil, malformed(raw, err)
	}
	if err := record.Decode(payload); err != nil {
		return nil, malformed(raw, fmt.Errorf("failed to decode data: %w", err))
	}

	return &Event{
		ID:          record.ID,
		Type:        record.Type,
		Version:     record.Version,
		Occurred:    record.Occurred,
		AggregateID: record.AggregateID,
		Payload:     payload,
		Metadata:    record.Metadata,
	}, nil
}

func decodeRecord(raw *RawEvent) (*Record, error) {
	record := &Record{
		Type:     raw.Type,
		ID:       raw.ID,
		Version:  raw.Version,
		Occurred: raw.Occurred,
	}

	if raw.AggregateID != "" {
		id, err := uuid.Parse(raw.AggregateID)
		if err != nil {
			return nil, fmt.Errorf("invalid aggregate id: %w", err)
		}
		record.AggregateID = uuid.NullUUID{UUID: id, Valid: true}
	}

	data, err := decodeDocument(raw.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	metadata, err := decodeDocument(raw.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	record.Data = data
	record.Metadata = metadata
	if !isNull(raw.Data) {
		record.rawData = raw.Data
	}
	return record, nil
}

// decodeDocument decodes a JSON object; null or empty input yields an empty map.
func decodeDocument(raw []byte) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if isNull(raw) {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// encodeDocument is the inverse of decodeDocument; empty documents are stored as NULL.
func encodeDocument(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
