package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// TokenStore owns the access token. Every change is persisted and then
// delivered synchronously to subscribers, in order.
type TokenStore struct {
	persist Persister
	log     zerolog.Logger

	mu    sync.RWMutex
	token string

	// writeMu serializes Set/Clear together with their broadcast.
	writeMu sync.Mutex
	subMu   sync.Mutex
	subs    map[int]func(token string)
	nextSub int
}

func NewTokenStore(persist Persister, log zerolog.Logger) *TokenStore {
	return &TokenStore{
		persist: persist,
		log:     log.With().Str("component", "token_store").Logger(),
		subs:    make(map[int]func(string)),
	}
}

func (s *TokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Load adopts the persisted token, if any, and broadcasts it.
func (s *TokenStore) Load() (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token, err := s.persist.Load(KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	s.apply(token)
	return token, nil
}

// Set replaces the token. The in-memory value and the broadcast happen even
// if persisting fails; the persist error is returned.
func (s *TokenStore) Set(token string) error {
	if token == "" {
		return s.Clear()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.persist.Save(KeyAccessToken, token)
	if err != nil {
		s.log.Warn().Err(err).Msg("persist token failed")
		err = fmt.Errorf("persist token: %w", err)
	}
	s.apply(token)
	return err
}

func (s *TokenStore) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.persist.Delete(KeyAccessToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("remove persisted token failed")
		err = fmt.Errorf("remove token: %w", err)
	}
	s.apply("")
	return err
}

func (s *TokenStore) apply(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	for _, fn := range s.subscribers() {
		fn(token)
	}
}

// Subscribe registers fn for token updates. Subscribers must not call Set or
// Clear.
func (s *TokenStore) Subscribe(fn func(token string)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *TokenStore) subscribers() []func(string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	// registration order
	sort.Ints(ids)
	out := make([]func(string), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}
