package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/client/transport"
)

type fakeAuthAPI struct {
	meStatus     int
	logoutStatus int
	// logoutDrop closes the connection without answering.
	logoutDrop   bool
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32

	authMu   sync.Mutex
	seenAuth []string
}

func (f *fakeAuthAPI) authHeaders() []string {
	f.authMu.Lock()
	defer f.authMu.Unlock()
	return append([]string(nil), f.seenAuth...)
}

func (f *fakeAuthAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-1",
			"user":  User{ID: "u1", Name: "Ann", Email: creds.Email, Roles: []string{"trainer"}},
		})
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if f.meStatus != 0 && f.meStatus != http.StatusOK {
			w.WriteHeader(f.meStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": User{ID: "u1", Name: "Ann Fresh", Email: "a@b.com"},
		})
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		if f.logoutDrop {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		if f.logoutStatus != 0 {
			w.WriteHeader(f.logoutStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v1/workouts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		f.authMu.Lock()
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		f.authMu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

type harness struct {
	api     *transport.Client
	tokens  *TokenStore
	persist *MemoryStore
	auth    *Auth

	mu       sync.Mutex
	statuses []Status
}

func newHarness(t *testing.T, fake *fakeAuthAPI, persist *MemoryStore) *harness {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	if persist == nil {
		persist = NewMemoryStore()
	}
	api := transport.New(transport.Config{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second}, zerolog.Nop())
	tokens := NewTokenStore(persist, zerolog.Nop())
	h := &harness{
		api:     api,
		tokens:  tokens,
		persist: persist,
		auth:    NewAuth(api, tokens, persist, zerolog.Nop()),
	}
	h.auth.Subscribe(func(s Snapshot) {
		h.mu.Lock()
		h.statuses = append(h.statuses, s.Status)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) seen() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func TestTokenUpdatesReachTransport(t *testing.T) {
	fake := &fakeAuthAPI{}
	h := newHarness(t, fake, nil)
	ctx := context.Background()

	require.NoError(t, h.tokens.Set("abc"))
	assert.Equal(t, "abc", h.api.Token())
	persisted, _ := h.persist.Load(KeyAccessToken)
	assert.Equal(t, "abc", persisted)
	_, err := h.api.Do(ctx, http.MethodGet, "/echo", nil)
	require.NoError(t, err)

	require.NoError(t, h.tokens.Set("def"))
	_, err = h.api.Do(ctx, http.MethodGet, "/echo", nil)
	require.NoError(t, err)

	require.NoError(t, h.tokens.Clear())
	assert.Empty(t, h.api.Token())
	persisted, err = h.persist.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Empty(t, persisted)
	_, err = h.api.Do(ctx, http.MethodGet, "/echo", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer abc", "Bearer def", ""}, fake.authHeaders())
}

func TestLoginAuthenticates(t *testing.T) {
	h := newHarness(t, &fakeAuthAPI{}, nil)

	user, err := h.auth.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.HasRole("trainer"))

	snap := h.auth.Snapshot()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Equal(t, "tok-1", snap.Token)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "tok-1", h.api.Token())
	assert.Equal(t, []Status{StatusIdle, StatusLoading, StatusAuthenticated}, h.seen())

	raw, _ := h.persist.Load(KeyUser)
	assert.Contains(t, raw, `"id":"u1"`)
}

func TestLoginFailureEndsUnauthenticated(t *testing.T) {
	h := newHarness(t, &fakeAuthAPI{}, nil)

	_, err := h.auth.Login(context.Background(), Credentials{Email: "a@b.com", Password: "nope"})
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, StatusUnauthenticated, h.auth.Status())
	assert.Empty(t, h.api.Token())
}

func TestBootRevalidatesPersistedSession(t *testing.T) {
	persist := NewMemoryStore()
	require.NoError(t, persist.Save(KeyAccessToken, "tok-1"))
	require.NoError(t, persist.Save(KeyUser, `{"id":"u1","name":"Ann Cached"}`))

	h := newHarness(t, &fakeAuthAPI{}, persist)
	require.NoError(t, h.auth.Boot(context.Background()))

	snap := h.auth.Snapshot()
	require.Equal(t, StatusAuthenticated, snap.Status)
	assert.Equal(t, "Ann Fresh", snap.User.Name)
	assert.Equal(t, []Status{StatusIdle, StatusLoading, StatusAuthenticated, StatusAuthenticated}, h.seen())
}

func TestBootWithoutTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t, &fakeAuthAPI{}, nil)
	require.NoError(t, h.auth.Boot(context.Background()))
	assert.Equal(t, StatusUnauthenticated, h.auth.Status())
}

func TestBootClearsRejectedSession(t *testing.T) {
	persist := NewMemoryStore()
	require.NoError(t, persist.Save(KeyAccessToken, "expired"))
	require.NoError(t, persist.Save(KeyUser, `{"id":"u1"}`))

	fake := &fakeAuthAPI{meStatus: http.StatusUnauthorized}
	h := newHarness(t, fake, persist)
	require.NoError(t, h.auth.Boot(context.Background()))

	assert.Equal(t, StatusUnauthenticated, h.auth.Status())
	token, _ := persist.Load(KeyAccessToken)
	user, _ := persist.Load(KeyUser)
	assert.Empty(t, token)
	assert.Empty(t, user)
	assert.Equal(t, int32(1), fake.refreshCalls.Load())
	assert.Equal(t, int32(0), fake.logoutCalls.Load())
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	fake := &fakeAuthAPI{logoutStatus: http.StatusInternalServerError}
	h := newHarness(t, fake, nil)
	_, err := h.auth.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	h.auth.Logout(context.Background())

	assert.Equal(t, int32(1), fake.logoutCalls.Load())
	snap := h.auth.Snapshot()
	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
	assert.Empty(t, h.api.Token())
	token, _ := h.persist.Load(KeyAccessToken)
	assert.Empty(t, token)
}

func TestLogoutClearsWhenConnectionDrops(t *testing.T) {
	fake := &fakeAuthAPI{logoutDrop: true}
	h := newHarness(t, fake, nil)
	_, err := h.auth.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	h.auth.Logout(context.Background())

	assert.GreaterOrEqual(t, fake.logoutCalls.Load(), int32(1))
	snap := h.auth.Snapshot()
	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.User)
	assert.Empty(t, h.api.Token())
	token, _ := h.persist.Load(KeyAccessToken)
	assert.Empty(t, token)
	user, _ := h.persist.Load(KeyUser)
	assert.Empty(t, user)
}

func TestExpiredSessionClearsLocally(t *testing.T) {
	fake := &fakeAuthAPI{}
	h := newHarness(t, fake, nil)
	_, err := h.auth.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = h.api.Do(context.Background(), http.MethodGet, "/workouts", nil)
	require.ErrorIs(t, err, transport.ErrSessionExpired)

	assert.Equal(t, StatusUnauthenticated, h.auth.Status())
	assert.Equal(t, int32(0), fake.logoutCalls.Load())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	missing, err := store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, store.Save(KeyAccessToken, "tok"))
	require.NoError(t, store.Save(KeyUser, `{"id":"u1"}`))

	got, err := store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	require.NoError(t, store.Delete(KeyAccessToken))
	require.NoError(t, store.Delete(KeyAccessToken))
	got, err = store.Load(KeyAccessToken)
	require.NoError(t, err)
	assert.Empty(t, got)
}
