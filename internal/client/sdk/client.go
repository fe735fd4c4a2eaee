// Package sdk assembles the client runtime: transport, session, realtime
// connection, query cache and the bridge between them.
package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"fitcoach/internal/client/bridge"
	"fitcoach/internal/client/querycache"
	"fitcoach/internal/client/realtime"
	"fitcoach/internal/client/session"
	"fitcoach/internal/client/transport"
	"fitcoach/internal/config"
	"fitcoach/internal/events"
)

type Client struct {
	API      *transport.Client
	Tokens   *session.TokenStore
	Auth     *session.Auth
	Realtime *realtime.Manager
	Cache    *querycache.Cache

	bridge *bridge.Bridge
	log    zerolog.Logger

	mu    sync.Mutex
	stops []func()
}

func New(cfg *config.ClientConfig, persist session.Persister, log zerolog.Logger) (*Client, error) {
	wsURL, err := RealtimeURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	api := transport.New(transport.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
	}, log)
	tokens := session.NewTokenStore(persist, log)
	cache := querycache.New(querycache.Options{StaleTime: cfg.CacheStaleTime}, log)

	return &Client{
		API:    api,
		Tokens: tokens,
		Auth:   session.NewAuth(api, tokens, persist, log),
		Realtime: realtime.NewManager(realtime.Options{
			URL:       wsURL,
			Reconnect: cfg.Reconnect,
		}, log),
		Cache:  cache,
		bridge: bridge.New(cache, log),
		log:    log,
	}, nil
}

// RealtimeURL derives the websocket endpoint from the API base URL.
func RealtimeURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path += "/realtime"
	return u.String(), nil
}

// Start wires the pieces together and restores any persisted session. The
// bridge follows the manager before the manager follows the session, so
// every connection is mounted before it opens.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.stops = append(c.stops,
		c.bridge.Follow(c.Realtime),
		c.Realtime.Follow(c.Auth),
		c.Auth.Subscribe(func(s session.Snapshot) {
			// cached data belongs to the previous user
			if s.Status == session.StatusUnauthenticated {
				c.Cache.Clear()
			}
		}),
	)
	c.mu.Unlock()

	return c.Auth.Boot(ctx)
}

// Close tears down in reverse order of Start.
func (c *Client) Close() {
	c.mu.Lock()
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()

	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
	c.Realtime.Close()
	c.Cache.Close()
}

// invalidateFor applies the same invalidations the server's event would,
// without waiting for the push.
func (c *Client) invalidateFor(name events.Name) {
	for _, scope := range events.InvalidationTable[name] {
		c.Cache.Invalidate(querycache.Key(scope))
	}
}
