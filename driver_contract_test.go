package es_test

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/indebted-modules/es/v2"
	"github.com/stretchr/testify/suite"
)

// DriverContractSuite holds the behaviour every driver shares. Backend suites embed it
// and set Driver in their SetupTest.
type DriverContractSuite struct {
	suite.Suite
	Driver es.Driver
}

func (s *DriverContractSuite) TestReadUnknownAggregateIsEmpty() {
	events, err := collect(s.Driver.Read(context.Background(), uuid.New()))
	s.NoError(err)
	s.Empty(events)
}

func (s *DriverContractSuite) TestAppendAndRead() {
	ctx := context.Background()
	id := uuid.New()

	events := somethingHappened("event-1", "event-2")
	events[0].WithMetadata("CorrelationID", "correlation-1")
	err := s.Driver.Append(ctx, id, es.NoStream(), events)
	s.NoError(err)
	s.Equal([]int64{1, 2}, versions(events))
	s.Equal(uuid.NullUUID{UUID: id, Valid: true}, events[0].AggregateID)

	read, err := collect(s.Driver.Read(ctx, id))
	s.NoError(err)
	s.Len(read, 2)
	s.Equal([]string{"event-1", "event-2"}, payloads(read))
	s.Equal([]int64{1, 2}, versions(read))
	s.Equal(events[0].ID, read[0].ID)
	s.Equal(events[1].ID, read[1].ID)
	s.Equal("SomethingHappened", read[0].Type)
	s.Equal(uuid.NullUUID{UUID: id, Valid: true}, read[1].AggregateID)
	s.Equal(map[string]interface{}{"CorrelationID": "correlation-1"}, read[0].Metadata)
	s.Equal(map[string]interface{}{}, read[1].Metadata)
	s.False(read[0].Occurred.IsZero())
}

func (s *DriverContractSuite) TestAppendContinuesVersions() {
	ctx := context.Background()
	id := uuid.New()

	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1", "event-2")))
	s.NoError(s.Driver.Append(ctx, id, es.Exact(2), somethingHappened("event-3")))
	anyEvents := somethingHappened("event-4", "event-5")
	s.NoError(s.Driver.Append(ctx, id, es.Any(), anyEvents))
	s.Equal([]int64{4, 5}, versions(anyEvents))
	s.Equal(uuid.NullUUID{UUID: id, Valid: true}, anyEvents[1].AggregateID)

	read, err := collect(s.Driver.Read(ctx, id))
	s.NoError(err)
	s.Equal([]string{"event-1", "event-2", "event-3", "event-4", "event-5"}, payloads(read))
	s.Equal([]int64{1, 2, 3, 4, 5}, versions(read))
}

func (s *DriverContractSuite) TestStaleExpectedVersionConflicts() {
	ctx := context.Background()
	id := uuid.New()

	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1")))

	err := s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("rejected"))
	s.True(errors.Is(err, es.ErrConcurrencyConflict), "unexpected error: %v", err)

	err = s.Driver.Append(ctx, id, es.Exact(0), somethingHappened("rejected"))
	s.True(errors.Is(err, es.ErrConcurrencyConflict), "unexpected error: %v", err)

	err = s.Driver.Append(ctx, id, es.Exact(5), somethingHappened("rejected"))
	s.True(errors.Is(err, es.ErrConcurrencyConflict), "unexpected error: %v", err)

	read, err := collect(s.Driver.Read(ctx, id))
	s.NoError(err)
	s.Equal([]string{"event-1"}, payloads(read))
}

func (s *DriverContractSuite) TestSameStaleVersionOnlyOneWins() {
	ctx := context.Background()
	id := uuid.New()
	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1")))

	first := s.Driver.Append(ctx, id, es.Exact(1), somethingHappened("first"))
	second := s.Driver.Append(ctx, id, es.Exact(1), somethingHappened("second"))
	s.NoError(first)
	s.True(errors.Is(second, es.ErrConcurrencyConflict), "unexpected error: %v", second)

	read, err := collect(s.Driver.Read(ctx, id))
	s.NoError(err)
	s.Equal([]string{"event-1", "first"}, payloads(read))
}

func (s *DriverContractSuite) TestReadIsIsolatedPerAggregate() {
	ctx := context.Background()
	id := uuid.New()
	other := uuid.New()

	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("mine")))
	s.NoError(s.Driver.Append(ctx, other, es.NoStream(), somethingHappened("theirs")))

	read, err := collect(s.Driver.Read(ctx, id))
	s.NoError(err)
	s.Equal([]string{"mine"}, payloads(read))
}

func (s *DriverContractSuite) TestReadAllInAppendOrder() {
	ctx := context.Background()
	id := uuid.New()
	other := uuid.New()

	it, err := s.Driver.ReadAll(ctx)
	if errors.Is(err, es.ErrNotSupported) {
		s.T().Skip("driver cannot read all events")
	}
	s.NoError(err)
	s.NoError(it.Close())

	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("all-1")))
	s.NoError(s.Driver.Append(ctx, other, es.NoStream(), somethingHappened("all-2")))
	s.NoError(s.Driver.Append(ctx, id, es.Exact(1), somethingHappened("all-3")))

	read, err := collect(s.Driver.ReadAll(ctx))
	s.NoError(err)

	data := []string{}
	for _, event := range read {
		if payload, ok := event.Payload.(*SomethingHappened); ok {
			data = append(data, payload.Data)
		}
	}
	s.Equal([]string{"all-1", "all-2", "all-3"}, data)
}

func (s *DriverContractSuite) TestIteratorEndsIdempotently() {
	ctx := context.Background()
	id := uuid.New()
	s.NoError(s.Driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1")))

	it, err := s.Driver.Read(ctx, id)
	s.NoError(err)
	defer it.Close()

	s.True(it.Next())
	s.True(it.Valid())
	s.NotEmpty(it.Key())
	s.False(it.Next())
	s.False(it.Valid())
	s.Nil(it.Current())
	s.Equal("", it.Key())
	s.False(it.Next())
	s.NoError(it.Err())
}

// racingAppends appends at the same expected version from several goroutines at once.
// Exactly one append must win and every other one must see a conflict.
func racingAppends(s *suite.Suite, driver es.Driver) {
	ctx := context.Background()
	for round := 0; round < 5; round++ {
		id := uuid.New()
		s.Require().NoError(driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1")))

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- driver.Append(ctx, id, es.Exact(1), somethingHappened("event-2", "event-3"))
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			s.True(errors.Is(err, es.ErrConcurrencyConflict), "unexpected error: %v", err)
		}
		s.Equal(1, succeeded)

		read, err := collect(driver.Read(ctx, id))
		s.NoError(err)
		s.Equal([]int64{1, 2, 3}, versions(read))
	}
}
