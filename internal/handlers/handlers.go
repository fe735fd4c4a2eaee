package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/events"
	"fitcoach/internal/middleware"
	"fitcoach/internal/models"
	"fitcoach/internal/realtime"
	"fitcoach/internal/repository"
	"fitcoach/internal/service"
)

// HealthCheck probes one backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Log           zerolog.Logger
	Config        *config.AppConfig
	Auth          *service.AuthService
	Workouts      *service.WorkoutService
	Nutrition     *service.NutritionService
	Exercises     *service.ExerciseService
	Notifications *service.NotificationService
	Hub           *realtime.Hub
	Publisher     events.Publisher
	Checks        []HealthCheck
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	workouts      *service.WorkoutService
	nutrition     *service.NutritionService
	exercises     *service.ExerciseService
	notifications *service.NotificationService
	hub           *realtime.Hub
	publisher     events.Publisher
	checks        []HealthCheck
}

func NewHandlerSet(d Deps) HandlerSet {
	return HandlerSet{
		log:           d.Log,
		cfg:           d.Config,
		authService:   d.Auth,
		workouts:      d.Workouts,
		nutrition:     d.Nutrition,
		exercises:     d.Exercises,
		notifications: d.Notifications,
		hub:           d.Hub,
		publisher:     d.Publisher,
		checks:        d.Checks,
	}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	authn := middleware.Auth(h.authService)
	coach := middleware.RequireRoles(models.UserRoleTrainer, models.UserRoleAdmin)

	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := auth.Group("")
		protected.Use(authn)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:deviceId", h.RevokeSession)
	}

	v1.GET("/realtime", authn, h.Realtime)

	workouts := v1.Group("/workouts", authn)
	{
		workouts.GET("", h.ListWorkouts)
		workouts.GET("/templates", h.ListWorkoutTemplates)
		workouts.POST("", coach, h.CreateWorkout)
		workouts.PUT("/:id", coach, h.UpdateWorkout)
		workouts.DELETE("/:id", coach, h.DeleteWorkout)
	}

	nutrition := v1.Group("/nutrition", authn)
	{
		nutrition.GET("/plans", h.ListPlans)
		nutrition.GET("/overview", h.NutritionOverview)
		nutrition.GET("/analytics", h.NutritionAnalytics)
		nutrition.POST("/plans", coach, h.CreatePlan)
		nutrition.PUT("/plans/:id", coach, h.UpdatePlan)
		nutrition.DELETE("/plans/:id", coach, h.DeletePlan)
	}

	exercises := v1.Group("/exercises", authn)
	{
		exercises.GET("", h.ListExercises)
		exercises.POST("", coach, h.CreateExercise)
		exercises.POST("/:id/media", coach, h.UploadExerciseMedia)
	}

	notifications := v1.Group("/notifications", authn)
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("", coach, h.SendNotification)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}

	admin := v1.Group("/admin", authn, middleware.RequireRoles(models.UserRoleAdmin))
	admin.GET("/realtime", h.AdminRealtimeStats)
	admin.POST("/events", h.AdminPublishEvent)
}

// fail maps service and repository errors onto HTTP responses.
func (h HandlerSet) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrUserSuspended):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrMediaTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrMediaUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrWorkoutNotFound),
		errors.Is(err, repository.ErrPlanNotFound),
		errors.Is(err, repository.ErrExerciseNotFound),
		errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal_server_error"})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func mustUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return user, ok
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}
