package es

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier publishes a notification about appended events
type Notifier interface {
	Publish(ctx context.Context, data interface{}) error
}

// Packet is the notification sent after a successful append
type Packet struct {
	AggregateID string
	Types       []string
}

// NewNotificationDriver creates a new NotificationDriver
func NewNotificationDriver(notifier Notifier, driver Driver) *NotificationDriver {
	return &NotificationDriver{
		notifier: notifier,
		driver:   driver,
	}
}

// NotificationDriver tells subscribers which event types were appended. Notifying is
// best effort: once events are stored the append succeeds even if publishing fails.
type NotificationDriver struct {
	notifier Notifier
	driver   Driver
}

// Read delegates to internal driver
func (s *NotificationDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	return s.driver.Read(ctx, aggregateID)
}

// ReadAll delegates to internal driver
func (s *NotificationDriver) ReadAll(ctx context.Context) (Iterator, error) {
	return s.driver.ReadAll(ctx)
}

// Append delegates to internal driver and publishes the appended event types
func (s *NotificationDriver) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	err := s.driver.Append(ctx, aggregateID, expected, events)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	packet := Packet{
		AggregateID: aggregateID.String(),
		Types:       s.extractEventTypes(events),
	}
	err = s.notifier.Publish(ctx, packet)
	if err != nil {
		log.
			Warn().
			Err(err).
			Str("AggregateID", packet.AggregateID).
			Strs("EventTypes", packet.Types).
			Msg("Failed to publish notification")
	}

	return nil
}

func (s *NotificationDriver) extractEventTypes(events []*Event) []string {
	set := make(map[string]bool)
	types := make([]string, 0, len(events))
	for _, event := range events {
		if !set[event.Type] {
			set[event.Type] = true
			types = append(types, event.Type)
		}
	}
	return types
}
