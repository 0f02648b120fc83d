package services

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

const notificationListLimit = 100

// NotificationService stores in-app notifications and hands them to an
// optional publisher for out-of-process delivery.
type NotificationService struct {
	store     ports.NotificationStore
	publisher ports.NotificationPublisher
	logger    *log.Logger
}

// NewNotificationService accepts a nil publisher, in which case notifications stay in-app.
func NewNotificationService(store ports.NotificationStore, publisher ports.NotificationPublisher, logger *log.Logger) *NotificationService {
	if logger == nil {
		logger = log.Discard()
	}
	return &NotificationService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentNotification),
	}
}

// Notify stores a notification for user and publishes it. A publish failure
// is logged and does not fail the call.
func (s *NotificationService) Notify(ctx context.Context, user core.User, typ core.NotificationType, title, message string) (core.Notification, error) {
	n, err := s.store.CreateNotification(ctx, core.Notification{
		UserID:  user.ID,
		Type:    typ,
		Title:   title,
		Message: message,
	})
	if err != nil {
		return core.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	if s.publisher == nil {
		return n, nil
	}
	if err := s.publisher.PublishNotification(ctx, n, user); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish notification",
			log.NewFields().WithUser(user.ID).WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
	return n, nil
}

// HasSince reports whether the user already received a notification of typ since t.
func (s *NotificationService) HasSince(ctx context.Context, userID int64, typ core.NotificationType, t time.Time) (bool, error) {
	return s.store.HasNotificationSince(ctx, userID, typ, t)
}

func (s *NotificationService) List(ctx context.Context, userID int64, unreadOnly bool) ([]core.Notification, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, notificationListLimit)
}

func (s *NotificationService) Recent(ctx context.Context, userID int64, limit int) ([]core.Notification, error) {
	return s.store.ListNotifications(ctx, userID, false, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteNotification(ctx, userID, id)
}
