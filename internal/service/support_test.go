package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kasigigs/kasigigs-backend/internal/models"
)

// recordingNotificationRepo captures notifications for assertions.
type recordingNotificationRepo struct {
	mu    sync.Mutex
	saved []models.Notification
}

func (m *recordingNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *n)
	return nil
}

func (m *recordingNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	return nil, nil
}

func (m *recordingNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}

func (m *recordingNotificationRepo) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return nil
}

func (m *recordingNotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (m *recordingNotificationRepo) forUser(userID uuid.UUID) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.saved {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type nullBroadcaster struct{}

func (nullBroadcaster) SendToUser(userID uuid.UUID, payload interface{}) {}

func newTestNotifier() (*NotificationService, *recordingNotificationRepo) {
	repo := &recordingNotificationRepo{}
	return NewNotificationService(repo, nullBroadcaster{}), repo
}
