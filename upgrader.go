package es

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var upgraders = NewUpgraders()

// Upgrader maps a deprecated event shape onto a current event while a stream is read.
// Upgrade returns nil to decline a record, letting the next upgrader or the registered
// payload type handle it.
type Upgrader interface {
	ListensTo() []string
	Upgrade(record *Record) (*Event, error)
}

type upgraderFunc struct {
	types   []string
	upgrade func(record *Record) (*Event, error)
}

func (u *upgraderFunc) ListensTo() []string {
	return u.types
}

func (u *upgraderFunc) Upgrade(record *Record) (*Event, error) {
	return u.upgrade(record)
}

// NewUpgrader creates an upgrader for the given event types
func NewUpgrader(types []string, upgrade func(record *Record) (*Event, error)) Upgrader {
	return &upgraderFunc{types: types, upgrade: upgrade}
}

// Record is a persisted event with decoded data and metadata, as seen by upgraders.
type Record struct {
	Type        string
	ID          string
	Version     int64
	Occurred    time.Time
	AggregateID uuid.NullUUID
	Data        map[string]interface{}
	Metadata    map[string]interface{}

	rawData []byte
}

// Decode unmarshals the record data into v
func (r *Record) Decode(v interface{}) error {
	if len(r.rawData) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(r.rawData, v)
}

// Event builds an event of the payload's type carrying the record's identity.
func (r *Record) Event(payload EventPayload) *Event {
	return &Event{
		ID:          r.ID,
		Type:        payload.PayloadType(),
		Version:     r.Version,
		Occurred:    r.Occurred,
		AggregateID: r.AggregateID,
		Payload:     payload,
		Metadata:    r.Metadata,
	}
}

type rankedUpgrader struct {
	priority int
	seq      int
	upgrader Upgrader
}

// Upgraders is an ordered chain of upgraders. Lower priorities run first; upgraders of
// equal priority run in registration order.
type Upgraders struct {
	mu      sync.RWMutex
	entries []rankedUpgrader
	seq     int
}

// NewUpgraders creates an empty chain
func NewUpgraders() *Upgraders {
	return &Upgraders{}
}

// Add registers an upgrader with the given priority
func (u *Upgraders) Add(priority int, upgrader Upgrader) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.seq++
	u.entries = append(u.entries, rankedUpgrader{priority: priority, seq: u.seq, upgrader: upgrader})
	sort.SliceStable(u.entries, func(i, j int) bool {
		if u.entries[i].priority != u.entries[j].priority {
			return u.entries[i].priority < u.entries[j].priority
		}
		return u.entries[i].seq < u.entries[j].seq
	})
}

// For returns the upgraders listening to eventType, in the order they must be tried
func (u *Upgraders) For(eventType string) []Upgrader {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var matches []Upgrader
	for _, entry := range u.entries {
		for _, t := range entry.upgrader.ListensTo() {
			if t == eventType {
				matches = append(matches, entry.upgrader)
				break
			}
		}
	}
	return matches
}

// Len returns the number of registered upgraders
func (u *Upgraders) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.entries)
}

// RegisterUpgrader adds an upgrader to the process-wide chain with priority 0
func RegisterUpgrader(upgrader Upgrader) {
	upgraders.Add(0, upgrader)
}

// RegisterUpgraderWithPriority adds an upgrader to the process-wide chain
func RegisterUpgraderWithPriority(priority int, upgrader Upgrader) {
	upgraders.Add(priority, upgrader)
}
