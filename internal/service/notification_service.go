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

const defaultNotificationLimit = 50

type NotificationService struct {
	notifications NotificationStore
	users         UserStore
	emitter
}

func NewNotificationService(notifications NotificationStore, users UserStore, publisher events.Publisher, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		emitter:       emitter{publisher: publisher, log: log},
	}
}

type NotificationInput struct {
	RecipientID string
	Title       string
	Body        string
}

func (s *NotificationService) List(ctx context.Context, user models.User, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return s.notifications.ListByRecipient(ctx, user.ID, limit)
}

func (s *NotificationService) Send(ctx context.Context, actor models.User, input NotificationInput) (models.Notification, error) {
	if input.RecipientID == "" || strings.TrimSpace(input.Title) == "" {
		return models.Notification{}, fmt.Errorf("%w: recipientId and title required", ErrInvalidInput)
	}
	if _, err := s.users.GetByID(ctx, input.RecipientID); err != nil {
		return models.Notification{}, err
	}

	n := models.Notification{
		ID:          ids.New(),
		RecipientID: input.RecipientID,
		Title:       strings.TrimSpace(input.Title),
		Body:        input.Body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return models.Notification{}, fmt.Errorf("save notification: %w", err)
	}

	s.emit(ctx, events.NotificationCreated, n.ID, actor.ID)
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, user models.User, id string) error {
	return s.notifications.MarkRead(ctx, id, user.ID, time.Now().UTC())
}
