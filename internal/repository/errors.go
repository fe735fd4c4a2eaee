package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrSessionNotFound      = errors.New("session not found")
	ErrWorkoutNotFound      = errors.New("workout not found")
	ErrPlanNotFound         = errors.New("nutrition plan not found")
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
