package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitcoach/internal/models"
)

// UserRepository keeps roles as a TEXT[] column.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const selectUser = `
	SELECT id, email, password_hash, display_name, roles, status, avatar_url, created_at, updated_at
	FROM users`

func (r *UserRepository) Create(ctx context.Context, u models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, roles, status, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.RoleNames(), u.Status, u.AvatarURL)
	switch {
	case isUniqueViolation(err):
		return ErrEmailTaken
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail expects email already normalised to lower case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.one(ctx, "email = $1", email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.one(ctx, "id = $1", id)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) one(ctx context.Context, where string, arg any) (models.User, error) {
	rows, err := r.pool.Query(ctx, selectUser+" WHERE "+where, arg)
	if err != nil {
		return models.User{}, err
	}
	u, err := pgx.CollectExactlyOneRow(rows, rowToUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var (
		u     models.User
		roles []string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &roles, &u.Status, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	u.Roles = make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		u.Roles = append(u.Roles, models.UserRole(role))
	}
	return u, nil
}
