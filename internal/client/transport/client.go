// Package transport is the HTTP client used by every client-side component.
// It carries the bearer token and runs the single-flight refresh flow on 401.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"

	DefaultTimeout = 15 * time.Second
)

var ErrSessionExpired = errors.New("session expired")

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:8080/api/v1.
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	http *resty.Client
	log  zerolog.Logger

	mu    sync.RWMutex
	token string
	// gen changes whenever token does, so a 401 can be traced back to the
	// token that produced it.
	gen uint64

	refreshGroup singleflight.Group

	obsMu     sync.Mutex
	refreshed []func(token string)
	expired   []func()
}

// New builds a client. The underlying resty client keeps a cookie jar, which
// is where the server's refresh cookie lives.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "fitcoach-client"
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Client{
		http: hc,
		log:  log.With().Str("component", "transport").Logger(),
	}
}

func (c *Client) BaseURL() string { return c.http.BaseURL }

// Token returns the client's current copy of the access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		return
	}
	c.token = token
	c.gen++
}

func (c *Client) ClearToken() { c.SetToken("") }

func (c *Client) snapshot() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.gen
}

// OnTokenRefreshed registers fn to receive every token obtained by a refresh.
func (c *Client) OnTokenRefreshed(fn func(token string)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.refreshed = append(c.refreshed, fn)
}

// OnSessionExpired registers fn to run after a refresh fails.
func (c *Client) OnSessionExpired(fn func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.expired = append(c.expired, fn)
}

type requestOptions struct {
	unauthenticated bool
	skipRefresh     bool
	query           url.Values
}

type Option func(*requestOptions)

// Unauthenticated sends the request without a bearer token.
func Unauthenticated() Option {
	return func(o *requestOptions) { o.unauthenticated = true }
}

// SkipRefresh returns a 401 to the caller instead of refreshing.
func SkipRefresh() Option {
	return func(o *requestOptions) { o.skipRefresh = true }
}

func WithQuery(values url.Values) Option {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range values {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

func isPublic(path string) bool {
	switch path {
	case PathLogin, PathRegister, PathRefresh:
		return true
	}
	return false
}

// Do sends one request. body, when non-nil, is encoded as JSON up front so the
// request can be replayed after a refresh.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...Option) (*Response, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	authed := !ro.unauthenticated && !isPublic(path)
	token, gen := c.snapshot()
	if !authed {
		token = ""
	}

	resp, err := c.send(ctx, method, path, payload, ro, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusUnauthorized || !authed || ro.skipRefresh {
		return finish(resp)
	}

	fresh, err := c.tokenAfter401(ctx, gen)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, method, path, payload, ro, fresh)
	if err != nil {
		return nil, err
	}
	return finish(resp)
}

// DoJSON sends the request and decodes a successful response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any, opts ...Option) error {
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, ro requestOptions, token string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	if ro.query != nil {
		req.SetQueryParamsFromValues(ro.query)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return resp, nil
}

func finish(resp *resty.Response) (*Response, error) {
	out := &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}
	if resp.IsSuccess() {
		return out, nil
	}
	return nil, &HTTPError{
		StatusCode: out.StatusCode,
		Message:    errorMessage(out),
		Body:       out.Body,
	}
}

func errorMessage(resp *Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(resp.StatusCode)
}

// tokenAfter401 returns the token to retry with. When the 401 came from a
// token that has since been replaced, the current token is used as is;
// otherwise all callers share one refresh.
func (c *Client) tokenAfter401(ctx context.Context, gen uint64) (string, error) {
	if token, current := c.snapshot(); current != gen {
		if token == "" {
			return "", ErrSessionExpired
		}
		return token, nil
	}

	// The shared refresh must not die with whichever caller started it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		if token, current := c.snapshot(); current != gen {
			if token == "" {
				return "", ErrSessionExpired
			}
			return token, nil
		}
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	token, err := c.requestRefresh(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed")
		c.ClearToken()
		for _, fn := range c.expiredObservers() {
			fn()
		}
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	c.SetToken(token)
	c.log.Debug().Msg("access token refreshed")
	for _, fn := range c.refreshObservers() {
		fn(token)
	}
	return token, nil
}

func (c *Client) requestRefresh(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, PathRefresh, nil, requestOptions{}, "")
	if err != nil {
		return "", err
	}
	out, err := finish(resp)
	if err != nil {
		return "", err
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := out.Decode(&payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", errors.New("refresh response carried no token")
	}
	return payload.Token, nil
}

func (c *Client) refreshObservers() []func(string) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	return append([]func(string){}, c.refreshed...)
}

func (c *Client) expiredObservers() []func() {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	return append([]func(){}, c.expired...)
}
