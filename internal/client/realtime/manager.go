package realtime

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"fitcoach/internal/client/session"
)

// Manager owns the single realtime connection. It is driven only by session
// state: a connection exists iff the session is authenticated with a token.
type Manager struct {
	opts Options
	log  zerolog.Logger

	// mu serializes Sync; swaps and their notifications happen under it.
	mu      sync.Mutex
	current atomic.Pointer[Conn]

	obsMu     sync.Mutex
	observers map[int]func(*Conn)
	nextObs   int
}

func NewManager(opts Options, log zerolog.Logger) *Manager {
	return &Manager{
		opts:      opts,
		log:       log.With().Str("component", "realtime_manager").Logger(),
		observers: make(map[int]func(*Conn)),
	}
}

// Current returns the live connection, or nil.
func (m *Manager) Current() *Conn {
	return m.current.Load()
}

// OnConnection calls fn with the current connection (possibly nil) and then
// on every swap: nil when a connection closes, the new *Conn before it opens.
func (m *Manager) OnConnection(fn func(*Conn)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	fn(m.current.Load())

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) notify(conn *Conn) {
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*Conn), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(conn)
	}
}

// Sync reconciles the connection with the session. A token change closes the
// old connection, waiting for it, before the new one is created.
func (m *Manager) Sync(authenticated bool, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := authenticated && token != ""
	cur := m.current.Load()
	if cur != nil && want && cur.Token() == token {
		return
	}
	if cur == nil && !want {
		return
	}

	if cur != nil {
		cur.Close()
		m.current.Store(nil)
		m.notify(nil)
		m.log.Debug().Msg("realtime connection closed")
	}
	if !want {
		return
	}

	conn := NewConn(m.opts, token, m.log)
	m.current.Store(conn)
	m.notify(conn)
	conn.Open()
	m.log.Debug().Msg("realtime connection opened")
}

// SessionSource publishes session snapshots, starting with the current one.
type SessionSource interface {
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
}

// Follow drives the manager from src until the returned stop is called.
// stop also closes the connection.
func (m *Manager) Follow(src SessionSource) (stop func()) {
	unsubscribe := src.Subscribe(func(s session.Snapshot) {
		m.Sync(s.Status == session.StatusAuthenticated, s.Token)
	})
	return func() {
		unsubscribe()
		m.Close()
	}
}

func (m *Manager) Close() {
	m.Sync(false, "")
}
