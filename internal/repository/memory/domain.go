package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fitcoach/internal/models"
	"fitcoach/internal/repository"
)

type WorkoutRepository struct {
	mu       sync.RWMutex
	workouts map[string]models.Workout
}

func NewWorkoutRepository() *WorkoutRepository {
	return &WorkoutRepository{workouts: make(map[string]models.Workout)}
}

func (r *WorkoutRepository) Create(_ context.Context, workout models.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	workout.Exercises = append([]models.WorkoutExercise(nil), workout.Exercises...)
	workout.UpdatedAt = workout.CreatedAt
	r.workouts[workout.ID] = workout
	return nil
}

func (r *WorkoutRepository) Update(_ context.Context, workout models.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.workouts[workout.ID]
	if !ok {
		return repository.ErrWorkoutNotFound
	}
	workout.TrainerID = existing.TrainerID
	workout.CreatedAt = existing.CreatedAt
	workout.Exercises = append([]models.WorkoutExercise(nil), workout.Exercises...)
	r.workouts[workout.ID] = workout
	return nil
}

func (r *WorkoutRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workouts[id]; !ok {
		return repository.ErrWorkoutNotFound
	}
	delete(r.workouts, id)
	return nil
}

func (r *WorkoutRepository) GetByID(_ context.Context, id string) (models.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workout, ok := r.workouts[id]
	if !ok {
		return models.Workout{}, repository.ErrWorkoutNotFound
	}
	return workout, nil
}

func (r *WorkoutRepository) ListForUser(_ context.Context, userID string, templatesOnly bool) ([]models.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Workout{}
	for _, w := range r.workouts {
		owned := w.TrainerID == userID || (w.ClientID != nil && *w.ClientID == userID)
		if !owned || (templatesOnly && !w.IsTemplate) {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type NutritionRepository struct {
	mu    sync.RWMutex
	plans map[string]models.NutritionPlan
}

func NewNutritionRepository() *NutritionRepository {
	return &NutritionRepository{plans: make(map[string]models.NutritionPlan)}
}

func (r *NutritionRepository) CreatePlan(_ context.Context, plan models.NutritionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan.Meals = append([]models.Meal(nil), plan.Meals...)
	plan.UpdatedAt = plan.CreatedAt
	r.plans[plan.ID] = plan
	return nil
}

func (r *NutritionRepository) UpdatePlan(_ context.Context, plan models.NutritionPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.plans[plan.ID]
	if !ok {
		return repository.ErrPlanNotFound
	}
	plan.TrainerID = existing.TrainerID
	plan.CreatedAt = existing.CreatedAt
	plan.Meals = append([]models.Meal(nil), plan.Meals...)
	r.plans[plan.ID] = plan
	return nil
}

func (r *NutritionRepository) DeletePlan(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[id]; !ok {
		return repository.ErrPlanNotFound
	}
	delete(r.plans, id)
	return nil
}

func (r *NutritionRepository) GetPlan(_ context.Context, id string) (models.NutritionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[id]
	if !ok {
		return models.NutritionPlan{}, repository.ErrPlanNotFound
	}
	return plan, nil
}

func (r *NutritionRepository) ListPlansForUser(_ context.Context, userID string) ([]models.NutritionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.NutritionPlan{}
	for _, p := range r.plans {
		if p.TrainerID == userID || (p.ClientID != nil && *p.ClientID == userID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type ExerciseRepository struct {
	mu        sync.RWMutex
	exercises map[string]models.Exercise
}

func NewExerciseRepository() *ExerciseRepository {
	return &ExerciseRepository{exercises: make(map[string]models.Exercise)}
}

func (r *ExerciseRepository) Create(_ context.Context, exercise models.Exercise) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exercise.UpdatedAt = exercise.CreatedAt
	r.exercises[exercise.ID] = exercise
	return nil
}

func (r *ExerciseRepository) GetByID(_ context.Context, id string) (models.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exercise, ok := r.exercises[id]
	if !ok {
		return models.Exercise{}, repository.ErrExerciseNotFound
	}
	return exercise, nil
}

func (r *ExerciseRepository) List(_ context.Context, limit, offset int) ([]models.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]models.Exercise, 0, len(r.exercises))
	for _, e := range r.exercises {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	if offset >= len(all) {
		return []models.Exercise{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *ExerciseRepository) UpdateMedia(_ context.Context, id string, objectKey string, format string, signature []byte, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exercise, ok := r.exercises[id]
	if !ok {
		return repository.ErrExerciseNotFound
	}
	exercise.MediaObjectKey = &objectKey
	exercise.MediaFormat = &format
	exercise.MediaSignature = signature
	exercise.UpdatedAt = updatedAt
	r.exercises[id] = exercise
	return nil
}

type NotificationRepository struct {
	mu    sync.RWMutex
	items map[string]models.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[string]models.Notification)}
}

func (r *NotificationRepository) Create(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = n
	return nil
}

func (r *NotificationRepository) ListByRecipient(_ context.Context, recipientID string, limit int) ([]models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range r.items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id string, recipientID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.RecipientID != recipientID {
		return repository.ErrNotificationNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	r.items[id] = n
	return nil
}
