package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
)

// Notifier delivers a message to a single user. Implementations may fan out
// to in-app, email, or SMS channels; callers treat dispatch as
// fire-and-forget and wrap calls in bestEffort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, severity models.NotificationType, link string) error
}

type inAppNotifier struct {
	repo repository.NotificationRepository
}

// NewInAppNotifier returns a Notifier that writes to the notifications table.
func NewInAppNotifier(repo repository.NotificationRepository) Notifier {
	return &inAppNotifier{repo: repo}
}

func (n *inAppNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message string, severity models.NotificationType, link string) error {
	if severity == "" {
		severity = models.NotifyInfo
	}
	return n.repo.Create(ctx, &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    severity,
		Link:    link,
	})
}
