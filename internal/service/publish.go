package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"fitcoach/internal/events"
	"fitcoach/internal/observability"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
)

// emitter publishes mutation events. A failed publish never fails the
// mutation that caused it.
type emitter struct {
	publisher events.Publisher
	log       zerolog.Logger
}

func (e emitter) emit(ctx context.Context, name events.Name, resourceID, actorID string) {
	if e.publisher == nil {
		return
	}
	evt, err := events.New(name, events.ResourceChanged{ResourceID: resourceID, ActorID: actorID})
	if err != nil {
		e.log.Error().Err(err).Str("event", string(name)).Msg("build event failed")
		return
	}
	err = e.publisher.Publish(ctx, evt)
	observability.RecordEventPublished(string(name), err)
	if err != nil {
		e.log.Warn().Err(err).Str("event", string(name)).Str("resource_id", resourceID).Msg("publish event failed")
	}
}
