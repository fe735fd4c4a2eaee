// Package bridge turns realtime domain events into query cache invalidations.
package bridge

import (
	"sync"

	"github.com/rs/zerolog"

	"fitcoach/internal/client/querycache"
	"fitcoach/internal/client/realtime"
	"fitcoach/internal/events"
)

type Invalidator interface {
	Invalidate(key querycache.Key)
}

// Channel is the subscription surface of a realtime connection.
type Channel interface {
	Subscribe(event events.Name, handler realtime.Handler) *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

// ConnectionSource announces connection swaps, starting with the current one.
type ConnectionSource interface {
	OnConnection(fn func(*realtime.Conn)) (unsubscribe func())
}

type Bridge struct {
	cache Invalidator
	table map[events.Name][]events.Scope
	log   zerolog.Logger
}

func New(cache Invalidator, log zerolog.Logger) *Bridge {
	return NewWithTable(cache, events.InvalidationTable, log)
}

func NewWithTable(cache Invalidator, table map[events.Name][]events.Scope, log zerolog.Logger) *Bridge {
	return &Bridge{
		cache: cache,
		table: table,
		log:   log.With().Str("component", "bridge").Logger(),
	}
}

// Mount registers one handler per event name on ch. A nil channel yields an
// empty mount.
func (b *Bridge) Mount(ch Channel) *Mount {
	m := &Mount{ch: ch}
	if ch == nil {
		return m
	}
	for _, name := range events.Names(b.table) {
		m.subs = append(m.subs, ch.Subscribe(name, b.handler(b.table[name])))
	}
	return m
}

func (b *Bridge) handler(scopes []events.Scope) realtime.Handler {
	keys := make([]querycache.Key, 0, len(scopes))
	for _, scope := range scopes {
		keys = append(keys, querycache.Key(scope))
	}
	return func(evt events.Event) {
		b.log.Debug().Str("event", string(evt.Name)).Str("event_id", evt.ID).Msg("invalidating")
		for _, key := range keys {
			b.cache.Invalidate(key)
		}
	}
}

// Follow keeps a mount on whatever connection src currently holds. The
// returned stop unmounts and detaches.
func (b *Bridge) Follow(src ConnectionSource) (stop func()) {
	var (
		mu      sync.Mutex
		current *Mount
	)
	unsubscribe := src.OnConnection(func(conn *realtime.Conn) {
		mu.Lock()
		defer mu.Unlock()
		current.Unmount()
		current = nil
		if conn != nil {
			current = b.Mount(conn)
		}
	})

	return func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		current.Unmount()
		current = nil
	}
}

// Mount is the set of subscriptions one Mount call added.
type Mount struct {
	ch   Channel
	once sync.Once
	subs []*realtime.Subscription
}

// Handlers reports how many subscriptions the mount added.
func (m *Mount) Handlers() int {
	if m == nil {
		return 0
	}
	return len(m.subs)
}

// Unmount removes exactly this mount's subscriptions. Safe on nil and safe
// to call twice.
func (m *Mount) Unmount() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		for _, sub := range m.subs {
			m.ch.Unsubscribe(sub)
		}
	})
}
