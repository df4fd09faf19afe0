package es_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/indebted-modules/es/v2"
)

// SampleAggregate .
type SampleAggregate struct {
	es.Versionable
	ReducedData []string
}

func (s *SampleAggregate) Reduce(typ string, payload interface{}) {
	switch typ {
	case "SomethingHappened":
		event := payload.(*SomethingHappened)
		s.ReducedData = append(s.ReducedData, event.Data)
	}
}

// DoSomething command does validation and returns events
func (s *SampleAggregate) DoSomething(id uuid.UUID, data []string) []*es.AppliedEvent {
	events := []*es.Event{}

	for i := range data {
		events = append(events, es.NewEvent(id, &SomethingHappened{Data: data[i]}))
	}

	return s.Apply(s, events)
}

// AnotherSampleAggregate .
type AnotherSampleAggregate struct {
	es.Versionable
	ReducedData []string
}

func (a *AnotherSampleAggregate) Reduce(typ string, payload interface{}) {
	switch typ {
	case "SomethingElseHappened":
		event := payload.(*SomethingElseHappened)
		a.ReducedData = append(a.ReducedData, event.Data)
	}
}

// DoSomethingElse command does validation and returns events
func (a *AnotherSampleAggregate) DoSomethingElse(id uuid.UUID, data []string) []*es.AppliedEvent {
	events := []*es.Event{}

	for i := range data {
		events = append(events, es.NewEvent(id, &SomethingElseHappened{Data: data[i]}))
	}

	return a.Apply(a, events)
}

// BrokenDriver .
type BrokenDriver struct {
	ErrorMessage string
}

func (d *BrokenDriver) Read(_ context.Context, _ uuid.UUID) (es.Iterator, error) {
	return nil, errors.New(d.ErrorMessage)
}

func (d *BrokenDriver) ReadAll(_ context.Context) (es.Iterator, error) {
	return nil, errors.New(d.ErrorMessage)
}

func (d *BrokenDriver) Append(_ context.Context, _ uuid.UUID, _ es.ExpectedVersion, _ []*es.Event) error {
	return errors.New(d.ErrorMessage)
}

// SomethingHappened .
type SomethingHappened struct {
	Data string
}

func (SomethingHappened) PayloadType() string {
	return "SomethingHappened"
}

// SomethingElseHappened .
type SomethingElseHappened struct {
	Data string
}

func (SomethingElseHappened) PayloadType() string {
	return "SomethingElseHappened"
}

// ItemAdded is the current shape of an item being added to a cart
type ItemAdded struct {
	Item     string
	Quantity int
}

func (ItemAdded) PayloadType() string {
	return "ItemAdded"
}

// ItemAddedV1 is the shape ItemAdded had before quantities existed
type ItemAddedV1 struct {
	Name string
}

func (ItemAddedV1) PayloadType() string {
	return "ItemAddedV1"
}

func init() {
	es.Register(SomethingHappened{})
	es.Register(SomethingElseHappened{})
	es.Register(ItemAdded{})
}

// newTestRegistry returns a registry with the cart payloads only
func newTestRegistry() *es.Registry {
	r := es.NewRegistry()
	if err := r.Register(ItemAdded{}); err != nil {
		panic(err)
	}
	return r
}

// itemAddedUpgrader maps ItemAddedV1 records onto ItemAdded with a quantity of one
func itemAddedUpgrader() es.Upgrader {
	return es.NewUpgrader([]string{"ItemAddedV1"}, func(record *es.Record) (*es.Event, error) {
		var old ItemAddedV1
		if err := record.Decode(&old); err != nil {
			return nil, err
		}
		return record.Event(&ItemAdded{Item: old.Name, Quantity: 1}), nil
	})
}

// collect drains an iterator, failing the caller through the returned error
func collect(it es.Iterator, err error) ([]*es.Event, error) {
	if err != nil {
		return nil, err
	}
	return es.Collect(it)
}

// payloads returns the Data field of SomethingHappened events
func payloads(events []*es.Event) []string {
	data := []string{}
	for _, event := range events {
		data = append(data, event.Payload.(*SomethingHappened).Data)
	}
	return data
}

// versions returns the versions of events
func versions(events []*es.Event) []int64 {
	v := []int64{}
	for _, event := range events {
		v = append(v, event.Version)
	}
	return v
}

// somethingHappened builds events without an aggregate for Append calls
func somethingHappened(data ...string) []*es.Event {
	events := []*es.Event{}
	for _, d := range data {
		events = append(events, es.NewEvent(uuid.Nil, &SomethingHappened{Data: d}))
	}
	return events
}

// FakeNotifier records published notifications
type FakeNotifier struct {
	mu        sync.Mutex
	Published []interface{}
	Err       error
}

func (n *FakeNotifier) Publish(_ context.Context, data interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.Published = append(n.Published, data)
	return nil
}

// StubCursor is a RawCursor over fixed records which cannot rewind
type StubCursor struct {
	Records []*es.RawEvent
	Err     error
	Closed  int
	pos     int
}

func (c *StubCursor) Fetch(_ context.Context) (*es.RawEvent, error) {
	if c.pos >= len(c.Records) {
		if c.Err != nil {
			return nil, c.Err
		}
		return nil, nil
	}
	raw := c.Records[c.pos]
	c.pos++
	return raw, nil
}

func (c *StubCursor) Close() error {
	c.Closed++
	return nil
}

// rawSomethingHappened builds a persisted SomethingHappened record
func rawSomethingHappened(aggregateID uuid.UUID, version int64, data string) *es.RawEvent {
	return &es.RawEvent{
		ID:          fmt.Sprintf("%s-%d", aggregateID, version),
		Type:        "SomethingHappened",
		Version:     version,
		AggregateID: aggregateID.String(),
		Data:        []byte(fmt.Sprintf(`{"Data":%q}`, data)),
	}
}
