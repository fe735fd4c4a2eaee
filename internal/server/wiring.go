package server

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fitcoach/internal/cache"
	"fitcoach/internal/config"
	"fitcoach/internal/events"
	"fitcoach/internal/handlers"
	"fitcoach/internal/ids"
	"fitcoach/internal/queue"
	"fitcoach/internal/realtime"
	"fitcoach/internal/repository"
	"fitcoach/internal/repository/memory"
	"fitcoach/internal/service"
)

// Backends holds the optional infrastructure. Nil fields select in-process
// fallbacks: memory repositories, local event delivery, no media uploads.
type Backends struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Media service.MediaStore
}

type SessionRepository interface {
	service.SessionStore
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type App struct {
	Handlers  handlers.HandlerSet
	Hub       *realtime.Hub
	Publisher events.Publisher
	Sessions  SessionRepository
	// Consumer relays the shared event stream into Hub; nil without Redis.
	Consumer *queue.Consumer
}

// Build assembles repositories, services and handlers over the given backends.
func Build(cfg *config.AppConfig, log zerolog.Logger, b Backends) *App {
	var (
		users         service.UserStore
		sessions      SessionRepository
		workouts      service.WorkoutStore
		plans         service.NutritionStore
		exercises     service.ExerciseStore
		notifications service.NotificationStore
	)
	if b.DB != nil {
		users = repository.NewUserRepository(b.DB)
		sessions = repository.NewSessionRepository(b.DB)
		workouts = repository.NewWorkoutRepository(b.DB)
		plans = repository.NewNutritionRepository(b.DB)
		exercises = repository.NewExerciseRepository(b.DB)
		notifications = repository.NewNotificationRepository(b.DB)
	} else {
		log.Warn().Msg("no postgres dsn configured, using in-memory repositories")
		users = memory.NewUserRepository()
		sessions = memory.NewSessionRepository()
		workouts = memory.NewWorkoutRepository()
		plans = memory.NewNutritionRepository()
		exercises = memory.NewExerciseRepository()
		notifications = memory.NewNotificationRepository()
	}

	hub := realtime.NewHub(cfg.Realtime, cfg.AllowCORSOrigins, log)

	var (
		publisher events.Publisher = events.LocalPublisher{Target: hub}
		consumer  *queue.Consumer
	)
	if b.Redis != nil {
		publisher = events.NewStreamPublisher(b.Redis, cfg.Realtime.Stream, cfg.Realtime.StreamMaxLen)
		instance := instanceID(cfg.Realtime)
		consumer = queue.NewConsumer(b.Redis, queue.Options{
			Stream:    cfg.Realtime.Stream,
			Group:     cfg.Realtime.GroupPrefix + ":" + instance,
			Consumer:  instance,
			ClaimIdle: cfg.Realtime.ClaimIdle,
		}, log, realtime.NewStreamRelay(hub, log))
	}

	auth := service.NewAuthService(users, sessions, cfg, log)

	var checks []handlers.HealthCheck
	if b.DB != nil {
		checks = append(checks, handlers.HealthCheck{Name: "database", Check: b.DB.Ping})
	}
	if b.Redis != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: cache.Ping(b.Redis)})
	}
	if pinger, ok := b.Media.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, handlers.HealthCheck{Name: "storage", Check: pinger.Ping})
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:           log,
		Config:        cfg,
		Auth:          auth,
		Workouts:      service.NewWorkoutService(workouts, publisher, log),
		Nutrition:     service.NewNutritionService(plans, publisher, log),
		Exercises:     service.NewExerciseService(exercises, b.Media, cfg, publisher, log),
		Notifications: service.NewNotificationService(notifications, users, publisher, log),
		Hub:           hub,
		Publisher:     publisher,
		Checks:        checks,
	})

	return &App{
		Handlers:  handlerSet,
		Hub:       hub,
		Publisher: publisher,
		Sessions:  sessions,
		Consumer:  consumer,
	}
}

// instanceID names this process's consumer group so every instance receives
// every event.
func instanceID(cfg config.RealtimeConfig) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "api"
	}
	return host + "-" + ids.New()
}
