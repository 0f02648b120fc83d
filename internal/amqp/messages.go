package amqp

import (
	"encoding/json"
	"time"

	"finsight/internal/core"
)

// NotificationEvent is published for every stored notification. It carries
// the recipient's address so the worker does not need database access.
type NotificationEvent struct {
	NotificationID int64     `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	CreatedAt      time.Time `json:"created_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewNotificationEvent builds the event for n addressed to recipient.
func NewNotificationEvent(n core.Notification, recipient core.User) *NotificationEvent {
	return &NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		CreatedAt:      n.CreatedAt,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *NotificationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NotificationEventFromJSON decodes an event published by PublishNotification.
func NotificationEventFromJSON(data []byte) (*NotificationEvent, error) {
	var e NotificationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
