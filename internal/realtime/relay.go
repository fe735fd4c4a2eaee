package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fitcoach/internal/events"
	"fitcoach/internal/observability"
)

// StreamRelay decodes event stream entries and broadcasts them locally.
type StreamRelay struct {
	target events.Broadcaster
	log    zerolog.Logger
}

func NewStreamRelay(target events.Broadcaster, log zerolog.Logger) *StreamRelay {
	return &StreamRelay{target: target, log: log}
}

// Handle never fails: an undecodable entry is logged and acknowledged so it
// is not redelivered forever.
func (r *StreamRelay) Handle(_ context.Context, msg redis.XMessage) error {
	evt, err := events.FromStreamValues(msg.Values)
	observability.RecordRelay(err)
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("discarding malformed event entry")
		return nil
	}
	r.target.Broadcast(evt)
	return nil
}
