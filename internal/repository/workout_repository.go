package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitcoach/internal/models"
)

type WorkoutRepository struct {
	pool *pgxpool.Pool
}

func NewWorkoutRepository(pool *pgxpool.Pool) *WorkoutRepository {
	return &WorkoutRepository{pool: pool}
}

const workoutColumns = `id, trainer_id, client_id, title, description, is_template, exercises, scheduled_at, created_at, updated_at`

func (r *WorkoutRepository) Create(ctx context.Context, workout models.Workout) error {
	exercises, err := json.Marshal(workout.Exercises)
	if err != nil {
		return fmt.Errorf("encode exercises: %w", err)
	}

	const query = `
		INSERT INTO workouts (
			id, trainer_id, client_id, title, description, is_template, exercises, scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		)
	`
	_, err = r.pool.Exec(ctx, query,
		workout.ID,
		workout.TrainerID,
		workout.ClientID,
		workout.Title,
		workout.Description,
		workout.IsTemplate,
		exercises,
		workout.ScheduledAt,
		workout.CreatedAt,
	)
	return err
}

func (r *WorkoutRepository) Update(ctx context.Context, workout models.Workout) error {
	exercises, err := json.Marshal(workout.Exercises)
	if err != nil {
		return fmt.Errorf("encode exercises: %w", err)
	}

	const query = `
		UPDATE workouts
		SET client_id = $2,
		    title = $3,
		    description = $4,
		    is_template = $5,
		    exercises = $6,
		    scheduled_at = $7,
		    updated_at = $8
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		workout.ID,
		workout.ClientID,
		workout.Title,
		workout.Description,
		workout.IsTemplate,
		exercises,
		workout.ScheduledAt,
		workout.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

func (r *WorkoutRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM workouts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

func (r *WorkoutRepository) GetByID(ctx context.Context, id string) (models.Workout, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE id = $1`
	return scanWorkout(r.pool.QueryRow(ctx, query, id))
}

// ListForUser returns workouts the user authored or is assigned to.
func (r *WorkoutRepository) ListForUser(ctx context.Context, userID string, templatesOnly bool) ([]models.Workout, error) {
	query := `
		SELECT ` + workoutColumns + `
		FROM workouts
		WHERE (trainer_id = $1 OR client_id = $1)
		  AND ($2 = FALSE OR is_template = TRUE)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, templatesOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := []models.Workout{}
	for rows.Next() {
		workout, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, workout)
	}
	return workouts, rows.Err()
}

func scanWorkout(row pgx.Row) (models.Workout, error) {
	var (
		workout   models.Workout
		exercises []byte
	)
	if err := row.Scan(
		&workout.ID,
		&workout.TrainerID,
		&workout.ClientID,
		&workout.Title,
		&workout.Description,
		&workout.IsTemplate,
		&exercises,
		&workout.ScheduledAt,
		&workout.CreatedAt,
		&workout.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Workout{}, ErrWorkoutNotFound
		}
		return models.Workout{}, err
	}
	if len(exercises) > 0 {
		if err := json.Unmarshal(exercises, &workout.Exercises); err != nil {
			return models.Workout{}, fmt.Errorf("decode exercises: %w", err)
		}
	}
	return workout, nil
}
