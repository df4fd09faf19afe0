package es_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/indebted-modules/es/v2"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
)

type KafkaNotifierSuite struct {
	suite.Suite
}

func TestKafkaNotifierSuite(t *testing.T) {
	suite.Run(t, new(KafkaNotifierSuite))
}

// FakeWriter records written messages
type FakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *FakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *FakeWriter) Close() error {
	w.closed = true
	return nil
}

func (s *KafkaNotifierSuite) TestPacketIsKeyedByAggregate() {
	writer := &FakeWriter{}
	notifier := &es.KafkaNotifier{Writer: writer}

	err := notifier.Publish(context.Background(), es.Packet{
		AggregateID: "aggregate-id",
		Types:       []string{"SomethingHappened", "SomethingElseHappened"},
	})
	s.NoError(err)
	s.Len(writer.messages, 1)

	msg := writer.messages[0]
	s.Equal("aggregate-id", string(msg.Key))
	s.JSONEq(`{"AggregateID":"aggregate-id","Types":["SomethingHappened","SomethingElseHappened"]}`, string(msg.Value))
	s.Equal([]kafka.Header{{Key: "event_types", Value: []byte("SomethingHappened,SomethingElseHappened")}}, msg.Headers)
}

func (s *KafkaNotifierSuite) TestOtherDataIsUnkeyed() {
	writer := &FakeWriter{}
	notifier := &es.KafkaNotifier{Writer: writer}

	s.NoError(notifier.Publish(context.Background(), map[string]string{"Status": "ok"}))
	s.Nil(writer.messages[0].Key)
	s.JSONEq(`{"Status":"ok"}`, string(writer.messages[0].Value))
}

func (s *KafkaNotifierSuite) TestNotifiesThroughDriver() {
	ctx := context.Background()
	id := uuid.New()
	writer := &FakeWriter{}
	driver := es.NewNotificationDriver(&es.KafkaNotifier{Writer: writer}, es.NewInMemoryDriver())

	s.NoError(driver.Append(ctx, id, es.NoStream(), somethingHappened("event-1")))
	s.Len(writer.messages, 1)
	s.Equal(id.String(), string(writer.messages[0].Key))
}

func (s *KafkaNotifierSuite) TestWriteFailure() {
	notifier := &es.KafkaNotifier{Writer: &FakeWriter{err: errors.New("leader not available")}}

	err := notifier.Publish(context.Background(), es.Packet{})
	s.EqualError(err, "leader not available")
}

func (s *KafkaNotifierSuite) TestClose() {
	writer := &FakeWriter{}
	notifier := &es.KafkaNotifier{Writer: writer}

	s.NoError(notifier.Close())
	s.True(writer.closed)
}

func (s *KafkaNotifierSuite) TestNewKafkaNotifier() {
	notifier := es.NewKafkaNotifier([]string{"localhost:9092"}, "events")

	writer, ok := notifier.Writer.(*kafka.Writer)
	s.True(ok)
	s.Equal("events", writer.Topic)
	s.NoError(notifier.Close())
}
