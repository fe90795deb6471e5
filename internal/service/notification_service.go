package service

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
)

type NotificationService interface {
	List(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID int64, notificationID string) error
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
}

func NewNotificationService(notifications repository.NotificationRepository) NotificationService {
	return &notificationService{notifications: notifications}
}

func (s *notificationService) List(ctx context.Context, userID int64, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.notifications.GetByUserID(ctx, userID, limit, offset)
}

// MarkRead scopes the update to the owning user so one user cannot mark
// another user's notification.
func (s *notificationService) MarkRead(ctx context.Context, userID int64, notificationID string) error {
	id, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return fmt.Errorf("invalid notification ID: %w", err)
	}
	return s.notifications.MarkRead(ctx, id, userID)
}

func (s *notificationService) CountUnread(ctx context.Context, userID int64) (int64, error) {
	return s.notifications.CountUnread(ctx, userID)
}
