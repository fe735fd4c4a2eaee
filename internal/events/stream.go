package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends events to a Redis stream read by every API instance.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, evt Event) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: ToStreamValues(evt),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func ToStreamValues(evt Event) map[string]any {
	return map[string]any{
		"id":         evt.ID,
		"event":      string(evt.Name),
		"payload":    string(evt.Payload),
		"emitted_at": evt.EmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FromStreamValues decodes a stream entry written by ToStreamValues.
func FromStreamValues(values map[string]any) (Event, error) {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	name, err := ParseName(str("event"))
	if err != nil {
		return Event{}, err
	}

	evt := Event{ID: str("id"), Name: name}
	if payload := str("payload"); payload != "" {
		evt.Payload = []byte(payload)
	}
	if ts := str("emitted_at"); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, fmt.Errorf("parse emitted_at: %w", err)
		}
		evt.EmittedAt = parsed
	}
	return evt, nil
}
