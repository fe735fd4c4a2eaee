package service

import (
	"context"
	"io"
	"time"

	"fitcoach/internal/models"
)

// The repository and storage contracts below are satisfied by both the
// Postgres repositories and the in-memory ones.

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Rotate(ctx context.Context, sessionID string, refreshHash []byte, expiresAt time.Time) error
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByDevice(ctx context.Context, userID string, deviceID string) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

type WorkoutStore interface {
	Create(ctx context.Context, workout models.Workout) error
	Update(ctx context.Context, workout models.Workout) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (models.Workout, error)
	ListForUser(ctx context.Context, userID string, templatesOnly bool) ([]models.Workout, error)
}

type NutritionStore interface {
	CreatePlan(ctx context.Context, plan models.NutritionPlan) error
	UpdatePlan(ctx context.Context, plan models.NutritionPlan) error
	DeletePlan(ctx context.Context, id string) error
	GetPlan(ctx context.Context, id string) (models.NutritionPlan, error)
	ListPlansForUser(ctx context.Context, userID string) ([]models.NutritionPlan, error)
}

type ExerciseStore interface {
	Create(ctx context.Context, exercise models.Exercise) error
	GetByID(ctx context.Context, id string) (models.Exercise, error)
	List(ctx context.Context, limit, offset int) ([]models.Exercise, error)
	UpdateMedia(ctx context.Context, id string, objectKey string, format string, signature []byte, updatedAt time.Time) error
}

type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, recipientID string, at time.Time) error
}

// MediaStore persists exercise media blobs.
type MediaStore interface {
	Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (int64, error)
	URL(objectKey string) string
}
