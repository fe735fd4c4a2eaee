// Package querycache stores server-fetched results by key, tracks staleness
// and refetches observed keys when they are invalidated.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Key is an ordered tuple of scope segments, e.g. {"nutrition", "plans"}.
type Key []string

func (k Key) String() string { return strings.Join(k, "/") }

// id length-prefixes each segment so no segment content can collide with a
// segment boundary.
func (k Key) id() string {
	var b strings.Builder
	for _, seg := range k {
		b.WriteString(strconv.Itoa(len(seg)))
		b.WriteByte(':')
		b.WriteString(seg)
	}
	return b.String()
}

type Fetcher func(ctx context.Context) (any, error)

var ErrNoFetcher = errors.New("no fetcher registered for key")

// Snapshot is the observable state of one entry.
type Snapshot struct {
	Key       Key
	Data      any
	FetchedAt time.Time
	Stale     bool
	Fetching  bool
	Err       error
}

type Options struct {
	// StaleTime ages entries out on their own; zero keeps them fresh until
	// invalidated.
	StaleTime time.Duration
}

type entry struct {
	key       Key
	data      any
	hasData   bool
	err       error
	fetchedAt time.Time
	stale     bool
	fetching  bool
	// dirty records an invalidation that landed while fetching.
	dirty     bool
	fetcher   Fetcher
	observers map[*Observer]struct{}
}

type Cache struct {
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	flights singleflight.Group
}

func New(opts Options, log zerolog.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		opts:    opts,
		log:     log.With().Str("component", "querycache").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			key:       append(Key(nil), key...),
			observers: make(map[*Observer]struct{}),
		}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if !e.hasData || e.stale || e.err != nil {
		return true
	}
	return c.opts.StaleTime > 0 && time.Since(e.fetchedAt) > c.opts.StaleTime
}

func (e *entry) snapshot(stale bool) Snapshot {
	return Snapshot{
		Key:       e.key,
		Data:      e.data,
		FetchedAt: e.fetchedAt,
		Stale:     stale,
		Fetching:  e.fetching,
		Err:       e.err,
	}
}

// Read returns fresh cached data or fetches it. Concurrent reads of one key
// share a single fetch. ctx bounds only this caller's wait.
func (c *Cache) Read(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}
	if !c.staleLocked(e) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	ch := c.startLocked(e)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// startLocked joins the key's in-flight fetch or begins a new one.
func (c *Cache) startLocked(e *entry) <-chan singleflight.Result {
	id := e.key.id()
	if !e.fetching {
		// A completed flight may still be registered for a moment; a new
		// logical fetch must not join it.
		c.flights.Forget(id)
		e.fetching = true
	}
	fetcher := e.fetcher
	return c.flights.DoChan(id, func() (any, error) {
		return c.runFetch(e, fetcher)
	})
}

// runFetch settles e with the fetch result. When e was dropped by Clear while
// the fetch ran, the result only reaches the callers that were waiting on it.
func (c *Cache) runFetch(e *entry, fetcher Fetcher) (any, error) {
	var (
		data any
		err  error
	)
	if fetcher == nil {
		err = ErrNoFetcher
	} else {
		data, err = fetcher(c.ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[e.key.id()] != e {
		return data, err
	}
	e.fetching = false
	if err != nil {
		e.err = err
		e.stale = true
		c.log.Warn().Err(err).Str("key", e.key.String()).Msg("fetch failed")
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.fetchedAt = time.Now()
		e.stale = e.dirty
	}

	followUp := e.dirty && len(e.observers) > 0
	e.dirty = false

	if followUp {
		c.startLocked(e)
	}
	c.publishLocked(e)
	return data, err
}

// Invalidate marks key stale. It never deletes data. Observed keys refetch
// in the background; others wait for their next Read or Observe.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.id()]
	if !ok {
		return
	}
	e.stale = true
	if e.fetching {
		e.dirty = true
		return
	}
	if len(e.observers) > 0 {
		c.startLocked(e)
		c.publishLocked(e)
	}
}

// InvalidatePrefix invalidates every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix Key) {
	c.mu.Lock()
	var keys []Key
	for _, e := range c.entries {
		if hasPrefix(e.key, prefix) {
			keys = append(keys, e.key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.Invalidate(key)
	}
}

func hasPrefix(key, prefix Key) bool {
	if len(prefix) > len(key) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (c *Cache) Peek(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(c.staleLocked(e)), true
}

// Observe keeps key live: it is fetched now if needed and refetched on every
// invalidation until the observer is closed.
func (c *Cache) Observe(key Key, fetcher Fetcher) *Observer {
	o := &Observer{cache: c, key: append(Key(nil), key...), updates: make(chan Snapshot, 1)}

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}
	e.observers[o] = struct{}{}

	if c.staleLocked(e) && !e.fetching {
		c.startLocked(e)
	}
	if e.hasData || e.err != nil {
		o.push(e.snapshot(c.staleLocked(e)))
	}
	return o
}

func (c *Cache) publishLocked(e *entry) {
	if len(e.observers) == 0 {
		return
	}
	snap := e.snapshot(c.staleLocked(e))
	for o := range e.observers {
		o.push(snap)
	}
}

// Clear drops every entry. Observers are closed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		for o := range e.observers {
			o.closeLocked()
		}
		delete(c.entries, id)
	}
}

// Close cancels in-flight fetches and closes all observers.
func (c *Cache) Close() {
	c.cancel()
	c.Clear()
}

// Get is a typed Read.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %s holds %T", key, v)
	}
	return typed, nil
}
