package worker

import (
	"context"
	"fmt"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/email"
	"finsight/internal/log"
)

// Mailer renders and delivers notification e-mails.
type Mailer interface {
	Compose(to string, n email.Notification) (email.Message, error)
	Send(ctx context.Context, msg email.Message) error
}

// NotificationWorker turns notification events from the queue into e-mails.
type NotificationWorker struct {
	mailer Mailer
	// types limits delivery; nil delivers every type.
	types  map[core.NotificationType]bool
	logger *log.Logger
}

func NewNotificationWorker(mailer Mailer, logger *log.Logger, types ...core.NotificationType) *NotificationWorker {
	if logger == nil {
		logger = log.Discard()
	}
	w := &NotificationWorker{mailer: mailer, logger: logger.WithComponent(log.ComponentWorker)}
	if len(types) > 0 {
		w.types = make(map[core.NotificationType]bool, len(types))
		for _, t := range types {
			w.types[t] = true
		}
	}
	return w
}

// HandleNotification matches amqp.Handler. Events that cannot be mailed are
// dropped; a delivery failure is returned so the message is retried.
func (w *NotificationWorker) HandleNotification(ctx context.Context, ev *amqp.NotificationEvent) error {
	typ := core.NotificationType(ev.Type)
	if w.types != nil && !w.types[typ] {
		w.logger.DebugContext(ctx, "Notification type not mailed", log.FieldNotifType, ev.Type)
		return nil
	}
	if ev.RecipientEmail == "" {
		w.logger.WarnContext(ctx, "Notification without recipient address",
			log.FieldUserID, ev.UserID,
			"notification_id", ev.NotificationID)
		return nil
	}

	msg, err := w.mailer.Compose(ev.RecipientEmail, email.Notification{
		RecipientName: ev.RecipientName,
		Type:          typ,
		Title:         ev.Title,
		Message:       ev.Message,
		CreatedAt:     ev.CreatedAt,
	})
	if err != nil {
		// A template failure will not fix itself on redelivery.
		w.logger.ErrorContext(ctx, "Failed to compose notification email",
			log.NewFields().WithUser(ev.UserID).WithError(err).ToSlice()...)
		return nil
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver notification %d: %w", ev.NotificationID, err)
	}
	w.logger.InfoContext(ctx, "Notification emailed",
		log.FieldUserID, ev.UserID,
		log.FieldNotifType, ev.Type,
		"notification_id", ev.NotificationID)
	return nil
}
