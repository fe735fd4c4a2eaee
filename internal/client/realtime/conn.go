// Package realtime keeps the client's websocket to the API's event hub.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/events"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateFailed is terminal for a Conn: the handshake was rejected or the
	// reconnect budget ran out.
	StateFailed State = "failed"
)

var ErrRejected = errors.New("realtime handshake rejected")

type Handler func(evt events.Event)

// Subscription is identified by pointer; Unsubscribe removes exactly it.
type Subscription struct {
	event   events.Name
	handler Handler
}

func (s *Subscription) Event() events.Name { return s.event }

type Options struct {
	// URL is the ws(s) endpoint of the realtime route.
	URL              string
	Reconnect        config.ReconnectConfig
	HandshakeTimeout time.Duration
	// ReadTimeout bounds silence from the server; pings reset it.
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.Reconnect.InitialInterval <= 0 {
		o.Reconnect.InitialInterval = 500 * time.Millisecond
	}
	if o.Reconnect.MaxInterval <= 0 {
		o.Reconnect.MaxInterval = 30 * time.Second
	}
	return o
}

// Conn is one logical connection bound to one token. The socket underneath
// may be redialed; subscriptions belong to the Conn and survive that.
type Conn struct {
	opts  Options
	token string
	log   zerolog.Logger

	mu       sync.Mutex
	subs     map[events.Name][]*Subscription
	state    State
	lastErr  error
	opened   bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	stateObs map[int]func(State, error)
	nextObs  int
}

func NewConn(opts Options, token string, log zerolog.Logger) *Conn {
	return &Conn{
		opts:     opts.withDefaults(),
		token:    token,
		log:      log.With().Str("component", "realtime").Logger(),
		subs:     make(map[events.Name][]*Subscription),
		state:    StateDisconnected,
		stateObs: make(map[int]func(State, error)),
	}
}

func (c *Conn) Token() string { return c.token }

func (c *Conn) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// OnStateChange registers fn for state transitions.
func (c *Conn) OnStateChange(fn func(State, error)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.stateObs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateObs, id)
		c.mu.Unlock()
	}
}

func (c *Conn) setState(state State, err error) {
	c.mu.Lock()
	if c.state == state && err == nil && c.lastErr == nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.lastErr = err
	obs := make([]func(State, error), 0, len(c.stateObs))
	for _, fn := range c.stateObs {
		obs = append(obs, fn)
	}
	c.mu.Unlock()

	ev := c.log.Debug().Str("state", string(state))
	if err != nil {
		ev = c.log.Warn().Err(err).Str("state", string(state))
	}
	ev.Msg("realtime state")

	for _, fn := range obs {
		fn(state, err)
	}
}

func (c *Conn) Subscribe(event events.Name, handler Handler) *Subscription {
	sub := &Subscription{event: event, handler: handler}
	c.mu.Lock()
	c.subs[event] = append(c.subs[event], sub)
	c.mu.Unlock()
	return sub
}

func (c *Conn) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[sub.event]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.subs, sub.event)
		return
	}
	c.subs[sub.event] = list
}

// HandlerCount reports live subscriptions for event.
func (c *Conn) HandlerCount(event events.Name) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[event])
}

// Dispatch invokes every subscription for evt.Name in registration order.
func (c *Conn) Dispatch(evt events.Event) {
	c.mu.Lock()
	handlers := append([]*Subscription(nil), c.subs[evt.Name]...)
	c.mu.Unlock()

	for _, sub := range handlers {
		sub.handler(evt)
	}
}

// Open starts connecting in the background. It is a no-op after the first
// call or after Close.
func (c *Conn) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened || c.closed {
		return
	}
	c.opened = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Close stops the connection and waits for its goroutines. It must not be
// called from a subscription handler.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.Reconnect.InitialInterval
	policy.MaxInterval = c.opts.Reconnect.MaxInterval
	policy.MaxElapsedTime = c.opts.Reconnect.MaxElapsed
	policy.Reset()

	for {
		c.setState(StateConnecting, nil)
		ws, err := c.dial(ctx)
		if err == nil {
			policy.Reset()
			c.setState(StateConnected, nil)
			err = c.readLoop(ctx, ws)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return
		}
		if errors.Is(err, ErrRejected) || c.opts.Reconnect.Disabled {
			c.setState(StateFailed, err)
			return
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			c.setState(StateFailed, fmt.Errorf("reconnect budget exhausted: %w", err))
			return
		}
		c.setState(StateDisconnected, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected, nil)
			return
		case <-timer.C:
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		return nil, err
	}
	return ws, nil
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	var closer sync.WaitGroup
	stop := make(chan struct{})
	defer closer.Wait()
	defer close(stop)

	closer.Add(1)
	go func() {
		defer closer.Done()
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = ws.Close()
		case <-stop:
			_ = ws.Close()
		}
	}()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		var evt events.Event
		if err := json.Unmarshal(data, &evt); err != nil || evt.Name == "" {
			c.log.Warn().Err(err).Msg("discarding malformed realtime frame")
			continue
		}
		c.Dispatch(evt)
	}
}
