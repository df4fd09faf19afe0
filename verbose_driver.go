package es

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NewVerboseDriver creates a new VerboseDriver
func NewVerboseDriver(driver Driver) *VerboseDriver {
	return &VerboseDriver{Driver: driver}
}

// VerboseDriver implementation for deployed environments
type VerboseDriver struct {
	Driver Driver
}

// Read delegates to internal driver
func (s *VerboseDriver) Read(ctx context.Context, aggregateID uuid.UUID) (Iterator, error) {
	return s.Driver.Read(ctx, aggregateID)
}

// ReadAll delegates to internal driver
func (s *VerboseDriver) ReadAll(ctx context.Context) (Iterator, error) {
	return s.Driver.ReadAll(ctx)
}

// Append delegates to internal driver and log all produced events
func (s *VerboseDriver) Append(ctx context.Context, aggregateID uuid.UUID, expected ExpectedVersion, events []*Event) error {
	err := s.Driver.Append(ctx, aggregateID, expected, events)
	if err != nil {
		return err
	}

	for _, event := range events {
		log.
			Info().
			Str("EventID", event.ID).
			Str("EventType", event.Type).
			Str("AggregateID", aggregateID.String()).
			Int64("EventVersion", event.Version).
			Time("Occurred", event.Occurred).
			Msg("Produced event")
	}

	return nil
}
