package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitcoach/internal/models"
)

// SessionRepository stores one row per (user, device). Columns are selected
// in models.Session field order so rows map by position.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const selectSession = `
	SELECT id, user_id, device_id, device_name, refresh_token_hash,
	       ip_address, user_agent, created_at, last_seen_at, expires_at
	FROM user_sessions`

func (r *SessionRepository) one(ctx context.Context, where string, arg any) (models.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+" WHERE "+where, arg)
	if err != nil {
		return models.Session{}, err
	}
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.Session])
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *SessionRepository) mustAffect(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Create signs a device in. Logging in again from a known device takes over
// its row with a new id and refresh hash.
func (r *SessionRepository) Create(ctx context.Context, s models.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, device_id, device_name, refresh_token_hash, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, device_id) DO UPDATE
		SET id = EXCLUDED.id,
		    device_name = EXCLUDED.device_name,
		    refresh_token_hash = EXCLUDED.refresh_token_hash,
		    ip_address = EXCLUDED.ip_address,
		    user_agent = EXCLUDED.user_agent,
		    created_at = NOW(),
		    last_seen_at = NOW(),
		    expires_at = EXCLUDED.expires_at`,
		s.ID, s.UserID, s.DeviceID, s.DeviceName, s.RefreshTokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Rotate(ctx context.Context, sessionID string, refreshHash []byte, expiresAt time.Time) error {
	return r.mustAffect(ctx,
		`UPDATE user_sessions SET refresh_token_hash = $2, expires_at = $3, last_seen_at = NOW() WHERE id = $1`,
		sessionID, refreshHash, expiresAt)
}

func (r *SessionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// DeleteOldestSessions keeps the keepLatest most recently used sessions.
func (r *SessionRepository) DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM user_sessions WHERE user_id = $1
			ORDER BY last_seen_at DESC, created_at DESC
			LIMIT $2
		)`, userID, keepLatest)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	return r.one(ctx, "id = $1", id)
}

func (r *SessionRepository) FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error) {
	return r.one(ctx, "refresh_token_hash = $1", refreshHash)
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	return r.mustAffect(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
}

func (r *SessionRepository) DeleteByDevice(ctx context.Context, userID string, deviceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	return err
}

// DeleteExpired removes sessions whose refresh window closed before cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+` WHERE user_id = $1 ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.Session])
}

// Touch bumps last_seen_at. Empty ip or agent leave the stored values alone.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip string, userAgent string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_sessions
		SET last_seen_at = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address),
		    user_agent = COALESCE(NULLIF($3, ''), user_agent)
		WHERE id = $1`, sessionID, ip, userAgent)
	return err
}
