// Package memory holds process-local repositories used when no Postgres DSN
// is configured, and by tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"fitcoach/internal/models"
	"fitcoach/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]models.User)}
}

func (r *UserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = user
	return nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepository) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.Status = status
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]models.Session)}
}

func (r *SessionRepository) Create(_ context.Context, session models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range r.sessions {
		if existing.UserID == session.UserID && existing.DeviceID == session.DeviceID {
			session.CreatedAt = existing.CreatedAt
			delete(r.sessions, id)
		}
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastSeenAt = now
	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepository) Rotate(_ context.Context, sessionID string, refreshHash []byte, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.RefreshTokenHash = refreshHash
	session.ExpiresAt = expiresAt
	session.LastSeenAt = time.Now().UTC()
	r.sessions[sessionID] = session
	return nil
}

func (r *SessionRepository) CountByUser(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *SessionRepository) DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error {
	sessions, _ := r.ListByUser(ctx, userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range sessions {
		if i >= keepLatest {
			delete(r.sessions, s.ID)
		}
	}
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) FindByRefreshHash(_ context.Context, refreshHash []byte) (models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if bytes.Equal(s.RefreshTokenHash, refreshHash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (r *SessionRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *SessionRepository) DeleteByDevice(_ context.Context, userID string, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID && s.DeviceID == deviceID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

func (r *SessionRepository) Touch(_ context.Context, sessionID string, ip string, userAgent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	s.LastSeenAt = time.Now().UTC()
	if ip != "" {
		s.IPAddress = ip
	}
	if userAgent != "" {
		s.UserAgent = userAgent
	}
	r.sessions[sessionID] = s
	return nil
}
