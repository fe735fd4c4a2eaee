package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitcoach/internal/models"
)

type ExerciseRepository struct {
	pool *pgxpool.Pool
}

func NewExerciseRepository(pool *pgxpool.Pool) *ExerciseRepository {
	return &ExerciseRepository{pool: pool}
}

const exerciseColumns = `id, owner_id, name, muscle_group, equipment, media_object_key, media_format, media_signature, created_at, updated_at`

func (r *ExerciseRepository) Create(ctx context.Context, exercise models.Exercise) error {
	const query = `
		INSERT INTO exercises (
			id, owner_id, name, muscle_group, equipment, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $6
		)
	`
	_, err := r.pool.Exec(ctx, query,
		exercise.ID,
		exercise.OwnerID,
		exercise.Name,
		exercise.MuscleGroup,
		exercise.Equipment,
		exercise.CreatedAt,
	)
	return err
}

func (r *ExerciseRepository) GetByID(ctx context.Context, id string) (models.Exercise, error) {
	query := `SELECT ` + exerciseColumns + ` FROM exercises WHERE id = $1`
	return scanExercise(r.pool.QueryRow(ctx, query, id))
}

func (r *ExerciseRepository) List(ctx context.Context, limit, offset int) ([]models.Exercise, error) {
	query := `SELECT ` + exerciseColumns + ` FROM exercises ORDER BY name ASC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exercises := []models.Exercise{}
	for rows.Next() {
		exercise, err := scanExercise(rows)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, exercise)
	}
	return exercises, rows.Err()
}

func (r *ExerciseRepository) UpdateMedia(ctx context.Context, id string, objectKey string, format string, signature []byte, updatedAt time.Time) error {
	const query = `
		UPDATE exercises
		SET media_object_key = $2,
		    media_format = $3,
		    media_signature = $4,
		    updated_at = $5
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, objectKey, format, signature, updatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExerciseNotFound
	}
	return nil
}

func scanExercise(row pgx.Row) (models.Exercise, error) {
	var exercise models.Exercise
	if err := row.Scan(
		&exercise.ID,
		&exercise.OwnerID,
		&exercise.Name,
		&exercise.MuscleGroup,
		&exercise.Equipment,
		&exercise.MediaObjectKey,
		&exercise.MediaFormat,
		&exercise.MediaSignature,
		&exercise.CreatedAt,
		&exercise.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Exercise{}, ErrExerciseNotFound
		}
		return models.Exercise{}, err
	}
	return exercise, nil
}
