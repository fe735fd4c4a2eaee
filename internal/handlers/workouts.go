package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/models"
	"fitcoach/internal/service"
)

type workoutRequest struct {
	ClientID    *string                  `json:"clientId"`
	Title       string                   `json:"title" binding:"required"`
	Description string                   `json:"description"`
	IsTemplate  bool                     `json:"isTemplate"`
	Exercises   []models.WorkoutExercise `json:"exercises"`
	ScheduledAt *time.Time               `json:"scheduledAt"`
}

func (r workoutRequest) input() service.WorkoutInput {
	return service.WorkoutInput{
		ClientID:    r.ClientID,
		Title:       r.Title,
		Description: r.Description,
		IsTemplate:  r.IsTemplate,
		Exercises:   r.Exercises,
		ScheduledAt: r.ScheduledAt,
	}
}

type workoutResponse struct {
	ID          string                   `json:"id"`
	TrainerID   string                   `json:"trainerId"`
	ClientID    *string                  `json:"clientId,omitempty"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	IsTemplate  bool                     `json:"isTemplate"`
	Exercises   []models.WorkoutExercise `json:"exercises"`
	ScheduledAt *time.Time               `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

func toWorkoutResponse(w models.Workout) workoutResponse {
	exercises := w.Exercises
	if exercises == nil {
		exercises = []models.WorkoutExercise{}
	}
	return workoutResponse{
		ID:          w.ID,
		TrainerID:   w.TrainerID,
		ClientID:    w.ClientID,
		Title:       w.Title,
		Description: w.Description,
		IsTemplate:  w.IsTemplate,
		Exercises:   exercises,
		ScheduledAt: w.ScheduledAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func workoutItems(workouts []models.Workout) []workoutResponse {
	items := make([]workoutResponse, 0, len(workouts))
	for _, w := range workouts {
		items = append(items, toWorkoutResponse(w))
	}
	return items
}

func (h HandlerSet) ListWorkouts(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	workouts, err := h.workouts.List(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": workoutItems(workouts)})
}

func (h HandlerSet) ListWorkoutTemplates(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	workouts, err := h.workouts.Templates(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": workoutItems(workouts)})
}

func (h HandlerSet) CreateWorkout(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req workoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workout, err := h.workouts.Create(c.Request.Context(), user, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workout": toWorkoutResponse(workout)})
}

func (h HandlerSet) UpdateWorkout(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req workoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workout, err := h.workouts.Update(c.Request.Context(), user, c.Param("id"), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workout": toWorkoutResponse(workout)})
}

func (h HandlerSet) DeleteWorkout(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.workouts.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
