package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"fitcoach/internal/client/querycache"
	"fitcoach/internal/client/transport"
	"fitcoach/internal/events"
)

var (
	KeyWorkouts           = querycache.Key(events.ScopeWorkouts)
	KeyWorkoutTemplates   = querycache.Key(events.ScopeWorkoutTemplates)
	KeyNutritionOverview  = querycache.Key(events.ScopeNutritionOverview)
	KeyNutritionPlans     = querycache.Key(events.ScopeNutritionPlans)
	KeyNutritionAnalytics = querycache.Key(events.ScopeNutritionAnalytics)
	KeyExercises          = querycache.Key(events.ScopeExercises)
	KeyNotifications      = querycache.Key(events.ScopeNotifications)
)

type WorkoutExercise struct {
	ExerciseID string `json:"exerciseId"`
	Sets       int    `json:"sets"`
	Reps       int    `json:"reps"`
	RestSec    int    `json:"restSec"`
}

type Workout struct {
	ID          string            `json:"id"`
	TrainerID   string            `json:"trainerId"`
	ClientID    *string           `json:"clientId,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	IsTemplate  bool              `json:"isTemplate"`
	Exercises   []WorkoutExercise `json:"exercises"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type WorkoutInput struct {
	ClientID    *string           `json:"clientId,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	IsTemplate  bool              `json:"isTemplate"`
	Exercises   []WorkoutExercise `json:"exercises,omitempty"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
}

type Meal struct {
	Name     string  `json:"name"`
	Calories int     `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	CarbsG   float64 `json:"carbsG"`
	FatG     float64 `json:"fatG"`
}

type NutritionPlan struct {
	ID            string    `json:"id"`
	TrainerID     string    `json:"trainerId"`
	ClientID      *string   `json:"clientId,omitempty"`
	Name          string    `json:"name"`
	DailyCalories int       `json:"dailyCalories"`
	Meals         []Meal    `json:"meals"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type PlanInput struct {
	ClientID      *string `json:"clientId,omitempty"`
	Name          string  `json:"name"`
	DailyCalories int     `json:"dailyCalories"`
	Meals         []Meal  `json:"meals,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

type NutritionOverview struct {
	TotalPlans       int     `json:"totalPlans"`
	ActivePlans      int     `json:"activePlans"`
	AssignedClients  int     `json:"assignedClients"`
	AverageDailyKcal float64 `json:"averageDailyKcal"`
}

type NutritionAnalytics struct {
	Plans         int     `json:"plans"`
	TotalCalories int     `json:"totalCalories"`
	ProteinG      float64 `json:"proteinG"`
	CarbsG        float64 `json:"carbsG"`
	FatG          float64 `json:"fatG"`
}

type Exercise struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	MuscleGroup string    `json:"muscleGroup"`
	Equipment   string    `json:"equipment"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	MediaFormat string    `json:"mediaFormat,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ExerciseInput struct {
	Name        string `json:"name"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
	Equipment   string `json:"equipment,omitempty"`
}

type Notification struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type NotificationInput struct {
	RecipientID string `json:"recipientId"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
}

type DeviceSession struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

// Query is a cached, typed server read.
type Query[T any] struct {
	cache *querycache.Cache
	key   querycache.Key
	fetch func(ctx context.Context) (T, error)
}

func (q Query[T]) Key() querycache.Key { return q.key }

func (q Query[T]) Get(ctx context.Context) (T, error) {
	return querycache.Get(ctx, q.cache, q.key, q.fetch)
}

// Observe keeps the query live until the observer is closed.
func (q Query[T]) Observe() *querycache.Observer {
	return q.cache.Observe(q.key, func(ctx context.Context) (any, error) {
		return q.fetch(ctx)
	})
}

// Value extracts the typed data from an observer snapshot.
func (q Query[T]) Value(s querycache.Snapshot) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}

func envelope[T any](api *transport.Client, path, field string) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var (
			out   map[string]json.RawMessage
			value T
		)
		if err := api.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
			return value, err
		}
		raw, ok := out[field]
		if !ok {
			return value, fmt.Errorf("%s: response has no %q field", path, field)
		}
		if err := json.Unmarshal(raw, &value); err != nil {
			return value, fmt.Errorf("%s: decode %s: %w", path, field, err)
		}
		return value, nil
	}
}

func (c *Client) Workouts() Query[[]Workout] {
	return Query[[]Workout]{c.Cache, KeyWorkouts, envelope[[]Workout](c.API, "/workouts", "items")}
}

func (c *Client) WorkoutTemplates() Query[[]Workout] {
	return Query[[]Workout]{c.Cache, KeyWorkoutTemplates, envelope[[]Workout](c.API, "/workouts/templates", "items")}
}

func (c *Client) NutritionPlans() Query[[]NutritionPlan] {
	return Query[[]NutritionPlan]{c.Cache, KeyNutritionPlans, envelope[[]NutritionPlan](c.API, "/nutrition/plans", "items")}
}

func (c *Client) NutritionOverview() Query[NutritionOverview] {
	return Query[NutritionOverview]{c.Cache, KeyNutritionOverview, envelope[NutritionOverview](c.API, "/nutrition/overview", "overview")}
}

func (c *Client) NutritionAnalytics() Query[NutritionAnalytics] {
	return Query[NutritionAnalytics]{c.Cache, KeyNutritionAnalytics, envelope[NutritionAnalytics](c.API, "/nutrition/analytics", "analytics")}
}

func (c *Client) Exercises() Query[[]Exercise] {
	return Query[[]Exercise]{c.Cache, KeyExercises, envelope[[]Exercise](c.API, "/exercises", "items")}
}

func (c *Client) Notifications() Query[[]Notification] {
	return Query[[]Notification]{c.Cache, KeyNotifications, envelope[[]Notification](c.API, "/notifications", "items")}
}

func (c *Client) CreateWorkout(ctx context.Context, in WorkoutInput) (Workout, error) {
	var out struct {
		Workout Workout `json:"workout"`
	}
	if err := c.API.DoJSON(ctx, http.MethodPost, "/workouts", in, &out); err != nil {
		return Workout{}, err
	}
	c.invalidateFor(events.WorkoutCreated)
	return out.Workout, nil
}

func (c *Client) UpdateWorkout(ctx context.Context, id string, in WorkoutInput) (Workout, error) {
	var out struct {
		Workout Workout `json:"workout"`
	}
	if err := c.API.DoJSON(ctx, http.MethodPut, "/workouts/"+url.PathEscape(id), in, &out); err != nil {
		return Workout{}, err
	}
	c.invalidateFor(events.WorkoutUpdated)
	return out.Workout, nil
}

func (c *Client) DeleteWorkout(ctx context.Context, id string) error {
	if _, err := c.API.Do(ctx, http.MethodDelete, "/workouts/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	c.invalidateFor(events.WorkoutDeleted)
	return nil
}

func (c *Client) CreatePlan(ctx context.Context, in PlanInput) (NutritionPlan, error) {
	var out struct {
		Plan NutritionPlan `json:"plan"`
	}
	if err := c.API.DoJSON(ctx, http.MethodPost, "/nutrition/plans", in, &out); err != nil {
		return NutritionPlan{}, err
	}
	c.invalidateFor(events.NutritionPlanCreated)
	return out.Plan, nil
}

func (c *Client) DeletePlan(ctx context.Context, id string) error {
	if _, err := c.API.Do(ctx, http.MethodDelete, "/nutrition/plans/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	c.invalidateFor(events.NutritionPlanDeleted)
	return nil
}

func (c *Client) CreateExercise(ctx context.Context, in ExerciseInput) (Exercise, error) {
	var out struct {
		Exercise Exercise `json:"exercise"`
	}
	if err := c.API.DoJSON(ctx, http.MethodPost, "/exercises", in, &out); err != nil {
		return Exercise{}, err
	}
	c.invalidateFor(events.ExerciseCreated)
	return out.Exercise, nil
}

func (c *Client) SendNotification(ctx context.Context, in NotificationInput) (Notification, error) {
	var out struct {
		Notification Notification `json:"notification"`
	}
	if err := c.API.DoJSON(ctx, http.MethodPost, "/notifications", in, &out); err != nil {
		return Notification{}, err
	}
	c.invalidateFor(events.NotificationCreated)
	return out.Notification, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if _, err := c.API.Do(ctx, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", nil); err != nil {
		return err
	}
	c.Cache.Invalidate(KeyNotifications)
	return nil
}

func (c *Client) Sessions(ctx context.Context) ([]DeviceSession, error) {
	var out struct {
		Sessions []DeviceSession `json:"sessions"`
	}
	if err := c.API.DoJSON(ctx, http.MethodGet, "/auth/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) RevokeDevice(ctx context.Context, deviceID string) error {
	_, err := c.API.Do(ctx, http.MethodDelete, "/auth/sessions/"+url.PathEscape(deviceID), nil)
	return err
}
