package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/client/session"
	"fitcoach/internal/config"
	"fitcoach/internal/events"
)

type hubStub struct {
	upgrader  websocket.Upgrader
	reject    bool
	connected chan *websocket.Conn

	mu     sync.Mutex
	tokens []string
}

func newHubStub(t *testing.T, reject bool) (*hubStub, string) {
	t.Helper()
	h := &hubStub{reject: reject, connected: make(chan *websocket.Conn, 16)}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
}

func (h *hubStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.reject {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.tokens = append(h.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	h.mu.Unlock()

	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				ws.Close()
				return
			}
		}
	}()
	h.connected <- ws
}

func (h *hubStub) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-h.connected:
		return ws
	case <-time.After(3 * time.Second):
		t.Fatal("no realtime connection arrived")
		return nil
	}
}

func waitState(t *testing.T, c *Conn, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, _ := c.State()
		return state == want
	}, 3*time.Second, 5*time.Millisecond, "state %s never reached", want)
}

func send(t *testing.T, ws *websocket.Conn, name events.Name, resourceID string) {
	t.Helper()
	evt, err := events.New(name, events.ResourceChanged{ResourceID: resourceID})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(evt))
}

func testOptions(url string) Options {
	return Options{
		URL: url,
		Reconnect: config.ReconnectConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			MaxElapsed:      5 * time.Second,
		},
	}
}

func TestConnDispatchesInServerOrder(t *testing.T) {
	hub, url := newHubStub(t, false)
	conn := NewConn(testOptions(url), "tok", zerolog.Nop())
	defer conn.Close()

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(evt events.Event) {
			mu.Lock()
			got = append(got, tag+":"+string(evt.Name))
			mu.Unlock()
		}
	}
	conn.Subscribe(events.WorkoutCreated, record("a"))
	conn.Subscribe(events.WorkoutCreated, record("b"))
	conn.Subscribe(events.NotificationCreated, record("a"))

	conn.Open()
	ws := hub.next(t)
	waitState(t, conn, StateConnected)

	send(t, ws, events.WorkoutCreated, "w1")
	send(t, ws, events.ExerciseCreated, "e1")
	send(t, ws, events.NotificationCreated, "n1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a:workout:created", "b:workout:created", "a:notification:created"}, got)

	hub.mu.Lock()
	assert.Equal(t, []string{"tok"}, hub.tokens)
	hub.mu.Unlock()
}

func TestUnsubscribeRemovesOnlyThatSubscription(t *testing.T) {
	conn := NewConn(Options{URL: "ws://unused"}, "tok", zerolog.Nop())

	calls := 0
	first := conn.Subscribe(events.WorkoutCreated, func(events.Event) { calls++ })
	conn.Subscribe(events.WorkoutCreated, func(events.Event) { calls += 10 })
	require.Equal(t, 2, conn.HandlerCount(events.WorkoutCreated))

	conn.Unsubscribe(first)
	conn.Unsubscribe(first)
	assert.Equal(t, 1, conn.HandlerCount(events.WorkoutCreated))

	conn.Dispatch(events.Event{Name: events.WorkoutCreated})
	assert.Equal(t, 10, calls)
}

func TestRejectedHandshakeFails(t *testing.T) {
	_, url := newHubStub(t, true)

	conn := NewConn(testOptions(url), "bad", zerolog.Nop())
	conn.Open()
	defer conn.Close()

	waitState(t, conn, StateFailed)
	_, err := conn.State()
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestReconnectKeepsSubscriptions(t *testing.T) {
	hub, url := newHubStub(t, false)
	conn := NewConn(testOptions(url), "tok", zerolog.Nop())
	defer conn.Close()

	received := make(chan string, 4)
	conn.Subscribe(events.WorkoutUpdated, func(evt events.Event) {
		received <- string(evt.Payload)
	})
	conn.Open()

	first := hub.next(t)
	waitState(t, conn, StateConnected)
	require.NoError(t, first.Close())

	second := hub.next(t)
	waitState(t, conn, StateConnected)
	send(t, second, events.WorkoutUpdated, "w2")

	select {
	case payload := <-received:
		assert.Contains(t, payload, "w2")
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered after reconnect")
	}
}

func TestDropWithReconnectDisabledFails(t *testing.T) {
	hub, url := newHubStub(t, false)
	opts := testOptions(url)
	opts.Reconnect.Disabled = true

	conn := NewConn(opts, "tok", zerolog.Nop())
	conn.Open()
	defer conn.Close()

	ws := hub.next(t)
	waitState(t, conn, StateConnected)
	require.NoError(t, ws.Close())

	waitState(t, conn, StateFailed)
}

func TestManagerFollowsSessionState(t *testing.T) {
	hub, url := newHubStub(t, false)
	m := NewManager(testOptions(url), zerolog.Nop())
	defer m.Close()

	var swaps []*Conn
	m.OnConnection(func(c *Conn) { swaps = append(swaps, c) })

	m.Sync(false, "tok-a")
	m.Sync(true, "")
	assert.Nil(t, m.Current())

	m.Sync(true, "tok-a")
	first := m.Current()
	require.NotNil(t, first)
	hub.next(t)
	waitState(t, first, StateConnected)

	m.Sync(true, "tok-a")
	assert.Same(t, first, m.Current())

	m.Sync(true, "tok-b")
	state, _ := first.State()
	assert.Equal(t, StateDisconnected, state, "old connection closes before the new one exists")
	second := m.Current()
	require.NotNil(t, second)
	assert.Equal(t, "tok-b", second.Token())
	hub.next(t)

	m.Sync(false, "tok-b")
	assert.Nil(t, m.Current())
	state, _ = second.State()
	assert.Equal(t, StateDisconnected, state)

	require.Len(t, swaps, 5)
	assert.Nil(t, swaps[0])
	assert.Same(t, first, swaps[1])
	assert.Nil(t, swaps[2])
	assert.Same(t, second, swaps[3])
	assert.Nil(t, swaps[4])

	hub.mu.Lock()
	assert.Equal(t, []string{"tok-a", "tok-b"}, hub.tokens)
	hub.mu.Unlock()
}

type fakeSession struct {
	fn func(session.Snapshot)
}

func (f *fakeSession) Subscribe(fn func(session.Snapshot)) func() {
	f.fn = fn
	fn(session.Snapshot{Status: session.StatusIdle})
	return func() { f.fn = nil }
}

func TestFollowOpensOnAuthenticated(t *testing.T) {
	hub, url := newHubStub(t, false)
	m := NewManager(testOptions(url), zerolog.Nop())
	src := &fakeSession{}

	stop := m.Follow(src)
	assert.Nil(t, m.Current())

	src.fn(session.Snapshot{Status: session.StatusAuthenticated, Token: "tok"})
	require.NotNil(t, m.Current())
	hub.next(t)

	src.fn(session.Snapshot{Status: session.StatusUnauthenticated})
	assert.Nil(t, m.Current())

	src.fn(session.Snapshot{Status: session.StatusAuthenticated, Token: "tok2"})
	require.NotNil(t, m.Current())
	stop()
	assert.Nil(t, m.Current())
	assert.Nil(t, src.fn)
}
