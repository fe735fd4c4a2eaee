package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu           sync.Mutex
	validToken   string
	nextToken    string
	refreshFails bool
	refreshDelay time.Duration
	refreshCalls atomic.Int32
	seenAuth     []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "session_invalid"})
			return
		}
		f.validToken = f.nextToken
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.nextToken})
	})
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "issued"})
	})
	mux.HandleFunc("/api/v1/things", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := "Bearer " + f.validToken
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []string{"a"}, "q": r.URL.Query().Get("q")})
	})
	mux.HandleFunc("/api/v1/always-401", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "title required"})
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second}, zerolog.Nop())
}

func TestDoAttachesBearerToken(t *testing.T) {
	api := &fakeAPI{validToken: "t1"}
	c := newTestClient(t, api)
	c.SetToken("t1")

	var out struct {
		Items []string `json:"items"`
		Q     string   `json:"q"`
	}
	err := c.DoJSON(context.Background(), http.MethodGet, "/things", nil, &out, WithQuery(url.Values{"q": {"x"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Items)
	assert.Equal(t, "x", out.Q)
	assert.Equal(t, []string{"Bearer t1"}, api.seenAuth)
}

func TestLoginIsSentWithoutBearer(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	c.SetToken("t1")

	_, err := c.Do(context.Background(), http.MethodPost, PathLogin, map[string]string{"email": "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, api.seenAuth)
}

func TestUnauthenticatedOmitsBearerAndNeverRefreshes(t *testing.T) {
	api := &fakeAPI{validToken: "t1", nextToken: "t2"}
	c := newTestClient(t, api)
	c.SetToken("t1")

	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil, Unauthenticated())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, []string{""}, api.seenAuth)
	assert.Zero(t, api.refreshCalls.Load())
	assert.Equal(t, "t1", c.Token())

	_, err = c.Do(context.Background(), http.MethodGet, "/things", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "Bearer t1"}, api.seenAuth)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api := &fakeAPI{validToken: "fresh", nextToken: "fresh", refreshDelay: 50 * time.Millisecond}
	c := newTestClient(t, api)
	c.SetToken("stale")

	var refreshed []string
	var mu sync.Mutex
	c.OnTokenRefreshed(func(token string) {
		mu.Lock()
		refreshed = append(refreshed, token)
		mu.Unlock()
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), http.MethodGet, "/things", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, []string{"fresh"}, refreshed)
	assert.Equal(t, "fresh", c.Token())
}

func TestReplacedTokenRetriesWithoutRefresh(t *testing.T) {
	api := &fakeAPI{validToken: "new"}
	c := newTestClient(t, api)
	c.SetToken("old")
	_, gen := c.snapshot()

	c.SetToken("new")
	token, err := c.tokenAfter401(context.Background(), gen)
	require.NoError(t, err)
	assert.Equal(t, "new", token)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	api := &fakeAPI{validToken: "other", refreshFails: true}
	c := newTestClient(t, api)
	c.SetToken("stale")

	var expired atomic.Int32
	c.OnSessionExpired(func() { expired.Add(1) })

	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), expired.Load())
	assert.Empty(t, c.Token())
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestRetriesOnlyOnce(t *testing.T) {
	api := &fakeAPI{nextToken: "fresh"}
	c := newTestClient(t, api)
	c.SetToken("stale")

	_, err := c.Do(context.Background(), http.MethodGet, "/always-401", nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestSkipRefreshReturns401(t *testing.T) {
	api := &fakeAPI{nextToken: "fresh"}
	c := newTestClient(t, api)
	c.SetToken("stale")

	_, err := c.Do(context.Background(), http.MethodGet, "/things", nil, SkipRefresh())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestHTTPErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})

	_, err := c.Do(context.Background(), http.MethodPost, "/broken", map[string]string{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Equal(t, "title required", httpErr.Message)
}

func TestSetTokenSameValueKeepsGeneration(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost"}, zerolog.Nop())
	c.SetToken("a")
	_, gen := c.snapshot()
	c.SetToken("a")
	_, again := c.snapshot()
	assert.Equal(t, gen, again)

	c.ClearToken()
	_, cleared := c.snapshot()
	assert.NotEqual(t, gen, cleared)
}
