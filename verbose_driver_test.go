package es_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/indebted-modules/es/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/suite"
)

type VerboseDriverSuite struct {
	suite.Suite
	logs   *bytes.Buffer
	logger zerolog.Logger
}

func TestVerboseDriverSuite(t *testing.T) {
	suite.Run(t, new(VerboseDriverSuite))
}

func (s *VerboseDriverSuite) SetupTest() {
	s.logs = &bytes.Buffer{}
	s.logger = log.Logger
	log.Logger = zerolog.New(s.logs)
}

func (s *VerboseDriverSuite) TearDownTest() {
	log.Logger = s.logger
}

// FakeDriver records which operations were called
type FakeDriver struct {
	readCalled   bool
	appendCalled bool
}

func (d *FakeDriver) Read(_ context.Context, _ uuid.UUID) (es.Iterator, error) {
	d.readCalled = true
	return es.NewIterator(context.Background(), &StubCursor{}, nil), nil
}

func (d *FakeDriver) ReadAll(_ context.Context) (es.Iterator, error) {
	d.readCalled = true
	return es.NewIterator(context.Background(), &StubCursor{}, nil), nil
}

func (d *FakeDriver) Append(_ context.Context, aggregateID uuid.UUID, _ es.ExpectedVersion, events []*es.Event) error {
	d.appendCalled = true
	for i, event := range events {
		event.AggregateID = uuid.NullUUID{UUID: aggregateID, Valid: true}
		event.Version = int64(i + 1)
	}
	return nil
}

func (s *VerboseDriverSuite) TestDelegateReadToInternalDriver() {
	ctx := context.Background()
	id := uuid.New()
	driver := es.NewInMemoryDriver()
	err := driver.Append(ctx, id, es.Any(), []*es.Event{es.NewEvent(id, &SomethingHappened{})})
	s.NoError(err)

	verboseDriver := es.NewVerboseDriver(driver)
	events, err := collect(verboseDriver.Read(ctx, id))
	s.NoError(err)
	s.Equal(&SomethingHappened{}, events[0].Payload)

	events, err = collect(verboseDriver.ReadAll(ctx))
	s.NoError(err)
	s.Len(events, 1)
	s.Empty(s.logs.String())
}

func (s *VerboseDriverSuite) TestDelegateAppendToInternalDriver() {
	ctx := context.Background()
	id := uuid.New()
	driver := es.NewInMemoryDriver()
	verboseDriver := es.NewVerboseDriver(driver)

	event := es.NewEvent(id, &SomethingHappened{})
	err := verboseDriver.Append(ctx, id, es.NoStream(), []*es.Event{event})
	s.NoError(err)

	events, err := collect(driver.Read(ctx, id))
	s.NoError(err)
	s.Equal(&SomethingHappened{}, events[0].Payload)

	var entry map[string]interface{}
	s.NoError(json.Unmarshal(s.logs.Bytes(), &entry))
	s.Equal("Produced event", entry["message"])
	s.Equal(event.ID, entry["EventID"])
	s.Equal("SomethingHappened", entry["EventType"])
	s.Equal(id.String(), entry["AggregateID"])
	s.Equal(float64(1), entry["EventVersion"])
}

func (s *VerboseDriverSuite) TestFailedAppendIsNotLogged() {
	verboseDriver := es.NewVerboseDriver(&BrokenDriver{ErrorMessage: "broken"})

	err := verboseDriver.Append(context.Background(), uuid.New(), es.Any(), somethingHappened("event-1"))
	s.EqualError(err, "broken")
	s.Empty(s.logs.String())
}
