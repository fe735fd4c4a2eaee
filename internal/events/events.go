// Package events defines the domain events pushed to realtime clients and the
// cache scopes each event invalidates on the client side.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"fitcoach/internal/ids"
)

// Name identifies a domain event as "<domain>:<action>".
type Name string

const (
	WorkoutCreated Name = "workout:created"
	WorkoutUpdated Name = "workout:updated"
	WorkoutDeleted Name = "workout:deleted"

	NutritionPlanCreated Name = "nutrition:plan-created"
	NutritionPlanUpdated Name = "nutrition:plan-updated"
	NutritionPlanDeleted Name = "nutrition:plan-deleted"

	ExerciseCreated Name = "exercise:created"
	ExerciseUpdated Name = "exercise:updated"

	NotificationCreated Name = "notification:created"
)

var ErrInvalidName = errors.New("invalid event name")

var namePattern = regexp.MustCompile(`^([a-z][a-z0-9]*):([a-z][a-z0-9-]*)$`)

// ParseName validates the naming convention.
func ParseName(value string) (Name, error) {
	if !namePattern.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, value)
	}
	return Name(value), nil
}

func (n Name) Domain() string {
	m := namePattern.FindStringSubmatch(string(n))
	if m == nil {
		return ""
	}
	return m[1]
}

func (n Name) Action() string {
	m := namePattern.FindStringSubmatch(string(n))
	if m == nil {
		return ""
	}
	return m[2]
}

// Event is the envelope carried on the stream and over the realtime socket.
type Event struct {
	ID        string          `json:"id"`
	Name      Name            `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// ResourceChanged is the payload attached by the API to every mutation event.
// Clients must not depend on it for invalidation.
type ResourceChanged struct {
	ResourceID string `json:"resourceId"`
	ActorID    string `json:"actorId,omitempty"`
}

// New stamps a fresh event.
func New(name Name, payload any) (Event, error) {
	if _, err := ParseName(string(name)); err != nil {
		return Event{}, err
	}
	evt := Event{
		ID:        ids.New(),
		Name:      name,
		EmittedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode payload: %w", err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

// Publisher fans a domain event out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Broadcaster receives events for local delivery.
type Broadcaster interface {
	Broadcast(evt Event)
}

// LocalPublisher delivers straight to an in-process broadcaster.
type LocalPublisher struct {
	Target Broadcaster
}

func (p LocalPublisher) Publish(_ context.Context, evt Event) error {
	if p.Target != nil {
		p.Target.Broadcast(evt)
	}
	return nil
}

// NoopPublisher drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
