package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fitcoach/internal/events"
	"fitcoach/internal/ids"
	"fitcoach/internal/models"
)

type WorkoutService struct {
	workouts WorkoutStore
	emitter
}

func NewWorkoutService(workouts WorkoutStore, publisher events.Publisher, log zerolog.Logger) *WorkoutService {
	return &WorkoutService{
		workouts: workouts,
		emitter:  emitter{publisher: publisher, log: log},
	}
}

type WorkoutInput struct {
	ClientID    *string
	Title       string
	Description string
	IsTemplate  bool
	Exercises   []models.WorkoutExercise
	ScheduledAt *time.Time
}

func (in WorkoutInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	for i, ex := range in.Exercises {
		if ex.ExerciseID == "" || ex.Sets < 0 || ex.Reps < 0 || ex.RestSec < 0 {
			return fmt.Errorf("%w: exercise %d malformed", ErrInvalidInput, i)
		}
	}
	return nil
}

func (s *WorkoutService) List(ctx context.Context, user models.User) ([]models.Workout, error) {
	return s.workouts.ListForUser(ctx, user.ID, false)
}

func (s *WorkoutService) Templates(ctx context.Context, user models.User) ([]models.Workout, error) {
	return s.workouts.ListForUser(ctx, user.ID, true)
}

func (s *WorkoutService) Create(ctx context.Context, actor models.User, input WorkoutInput) (models.Workout, error) {
	if err := input.validate(); err != nil {
		return models.Workout{}, err
	}

	now := time.Now().UTC()
	workout := models.Workout{
		ID:          ids.New(),
		TrainerID:   actor.ID,
		ClientID:    input.ClientID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		IsTemplate:  input.IsTemplate,
		Exercises:   input.Exercises,
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.workouts.Create(ctx, workout); err != nil {
		return models.Workout{}, fmt.Errorf("save workout: %w", err)
	}

	s.emit(ctx, events.WorkoutCreated, workout.ID, actor.ID)
	return workout, nil
}

func (s *WorkoutService) Update(ctx context.Context, actor models.User, id string, input WorkoutInput) (models.Workout, error) {
	if err := input.validate(); err != nil {
		return models.Workout{}, err
	}

	existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return models.Workout{}, err
	}

	existing.ClientID = input.ClientID
	existing.Title = strings.TrimSpace(input.Title)
	existing.Description = input.Description
	existing.IsTemplate = input.IsTemplate
	existing.Exercises = input.Exercises
	existing.ScheduledAt = input.ScheduledAt
	existing.UpdatedAt = time.Now().UTC()

	if err := s.workouts.Update(ctx, existing); err != nil {
		return models.Workout{}, err
	}

	s.emit(ctx, events.WorkoutUpdated, existing.ID, actor.ID)
	return existing, nil
}

func (s *WorkoutService) Delete(ctx context.Context, actor models.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.workouts.Delete(ctx, id); err != nil {
		return err
	}

	s.emit(ctx, events.WorkoutDeleted, id, actor.ID)
	return nil
}

// owned loads a workout the actor may mutate: its trainer, or any admin.
func (s *WorkoutService) owned(ctx context.Context, actor models.User, id string) (models.Workout, error) {
	workout, err := s.workouts.GetByID(ctx, id)
	if err != nil {
		return models.Workout{}, err
	}
	if workout.TrainerID != actor.ID && !actor.HasAnyRole(models.UserRoleAdmin) {
		return models.Workout{}, ErrForbidden
	}
	return workout, nil
}
