package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kasigigs/kasigigs-backend/internal/models"
)

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// Broadcaster pushes a notification to the user's live connections.
type Broadcaster interface {
	SendToUser(userID uuid.UUID, payload interface{})
}

// NotificationService persists lifecycle events and fans them out over the
// websocket hub. Delivery failures never fail the triggering operation.
type NotificationService struct {
	repo        NotificationRepository
	broadcaster Broadcaster
}

func NewNotificationService(repo NotificationRepository, broadcaster Broadcaster) *NotificationService {
	return &NotificationService{repo: repo, broadcaster: broadcaster}
}

// Notify stores the event and pushes it to the recipient.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, notifyType, title, body string, entityID *uuid.UUID) {
	n := &models.Notification{
		UserID:   userID,
		Type:     notifyType,
		Title:    title,
		Body:     body,
		EntityID: entityID,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    notifyType,
		}).Error("failed to persist notification")
		return
	}

	if s.broadcaster != nil {
		s.broadcaster.SendToUser(userID, n)
	}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}
