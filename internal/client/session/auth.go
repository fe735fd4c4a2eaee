// Package session holds the client's notion of who is signed in: the access
// token, the cached user and the auth status observers react to.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"fitcoach/internal/client/transport"
)

type Status string

const (
	StatusIdle            Status = "idle"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Snapshot is what observers see on every transition.
type Snapshot struct {
	Status Status
	User   *User
	Token  string
}

func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != ""
}

type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

type Registration struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

type authPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

var errNoToken = errors.New("auth response carried no token")

// Auth is the session state machine:
// idle -> loading -> authenticated | unauthenticated, cyclic through login
// and logout.
type Auth struct {
	api     *transport.Client
	tokens  *TokenStore
	persist Persister
	log     zerolog.Logger

	// opMu serializes Boot, Login, Register and Logout. The session-expired
	// path runs from inside transport calls and must never take it.
	opMu sync.Mutex

	mu     sync.RWMutex
	status Status
	user   *User

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewAuth wires the token store, the transport's token copy and the
// transport's refresh signals together.
func NewAuth(api *transport.Client, tokens *TokenStore, persist Persister, log zerolog.Logger) *Auth {
	a := &Auth{
		api:       api,
		tokens:    tokens,
		persist:   persist,
		log:       log.With().Str("component", "auth").Logger(),
		status:    StatusIdle,
		observers: make(map[int]func(Snapshot)),
	}

	tokens.Subscribe(func(token string) {
		if token == "" {
			api.ClearToken()
		} else {
			api.SetToken(token)
		}
		a.tokenChanged()
	})
	api.OnTokenRefreshed(func(token string) {
		if err := tokens.Set(token); err != nil {
			a.log.Warn().Err(err).Msg("store refreshed token failed")
		}
	})
	api.OnSessionExpired(func() {
		a.log.Info().Msg("session expired")
		a.clearLocal()
	})

	return a
}

func (a *Auth) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := Snapshot{Status: a.status, Token: a.tokens.Get()}
	if a.user != nil {
		u := *a.user
		snap.User = &u
	}
	return snap
}

func (a *Auth) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Subscribe delivers the current snapshot immediately, then every change.
// Observers run synchronously and in order; they must not call back into
// Auth's operations.
func (a *Auth) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.obsMu.Lock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = fn
	a.obsMu.Unlock()

	fn(a.Snapshot())

	return func() {
		a.obsMu.Lock()
		delete(a.observers, id)
		a.obsMu.Unlock()
	}
}

func (a *Auth) emit() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	snap := a.Snapshot()
	for _, fn := range a.observerList() {
		fn(snap)
	}
}

func (a *Auth) observerList() []func(Snapshot) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	ids := make([]int, 0, len(a.observers))
	for id := range a.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		out = append(out, a.observers[id])
	}
	return out
}

func (a *Auth) setStatus(status Status, user *User) {
	a.mu.Lock()
	a.status = status
	a.user = user
	a.mu.Unlock()
	a.emit()
}

// tokenChanged re-emits while authenticated so token holders, the realtime
// connection among them, pick up a refreshed token.
func (a *Auth) tokenChanged() {
	if a.Status() == StatusAuthenticated {
		a.emit()
	}
}

// Boot restores a persisted session. The cached user is adopted at once and
// then revalidated against the server; any failure clears everything.
func (a *Auth) Boot(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.setStatus(StatusLoading, nil)

	token, err := a.tokens.Load()
	if err != nil {
		a.clearLocal()
		return err
	}
	if token == "" {
		a.clearLocal()
		return nil
	}

	if cached, err := a.loadUser(); err != nil {
		a.log.Warn().Err(err).Msg("cached user unreadable")
	} else if cached != nil {
		a.setStatus(StatusAuthenticated, cached)
	}

	user, err := a.fetchMe(ctx)
	if err != nil {
		a.log.Info().Err(err).Msg("stored session rejected")
		a.clearLocal()
		return nil
	}
	a.saveUser(user)
	a.setStatus(StatusAuthenticated, &user)
	return nil
}

func (a *Auth) Login(ctx context.Context, creds Credentials) (User, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.authenticate(ctx, transport.PathLogin, creds)
}

func (a *Auth) Register(ctx context.Context, reg Registration) (User, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.authenticate(ctx, transport.PathRegister, reg)
}

func (a *Auth) authenticate(ctx context.Context, path string, body any) (User, error) {
	a.setStatus(StatusLoading, nil)

	var out authPayload
	err := a.api.DoJSON(ctx, http.MethodPost, path, body, &out)
	if err == nil && out.Token == "" {
		err = errNoToken
	}
	if err != nil {
		a.clearLocal()
		return User{}, err
	}

	a.saveUser(out.User)
	if err := a.tokens.Set(out.Token); err != nil {
		a.log.Warn().Err(err).Msg("session will not survive restart")
	}
	user := out.User
	a.setStatus(StatusAuthenticated, &user)
	a.log.Info().Str("user_id", user.ID).Msg("signed in")
	return user, nil
}

// Logout tells the server on a best-effort basis and always clears the local
// session.
func (a *Auth) Logout(ctx context.Context) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if a.tokens.Get() != "" {
		if _, err := a.api.Do(ctx, http.MethodPost, "/auth/logout", nil, transport.SkipRefresh()); err != nil {
			a.log.Warn().Err(err).Msg("server logout failed")
		}
	}
	a.clearLocal()
}

// RefreshProfile re-fetches the user without touching the token.
func (a *Auth) RefreshProfile(ctx context.Context) (User, error) {
	user, err := a.fetchMe(ctx)
	if err != nil {
		return User{}, err
	}
	a.saveUser(user)

	a.mu.Lock()
	authenticated := a.status == StatusAuthenticated
	if authenticated {
		a.user = &user
	}
	a.mu.Unlock()
	if authenticated {
		a.emit()
	}
	return user, nil
}

func (a *Auth) fetchMe(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := a.api.DoJSON(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// clearLocal drops the session without contacting the server.
func (a *Auth) clearLocal() {
	a.mu.Lock()
	a.status = StatusUnauthenticated
	a.user = nil
	a.mu.Unlock()

	if err := a.persist.Delete(KeyUser); err != nil {
		a.log.Warn().Err(err).Msg("remove cached user failed")
	}
	if err := a.tokens.Clear(); err != nil {
		a.log.Warn().Err(err).Msg("remove token failed")
	}
	a.emit()
}

func (a *Auth) loadUser() (*User, error) {
	raw, err := a.persist.Load(KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}
	return &user, nil
}

func (a *Auth) saveUser(user User) {
	raw, err := json.Marshal(user)
	if err == nil {
		err = a.persist.Save(KeyUser, string(raw))
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("persist user failed")
	}
}
