package worker

import (
	"context"
	"errors"
	"testing"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/email"
)

type fakeMailer struct {
	composeErr error
	sendErr    error
	sent       []email.Message
	composed   []email.Notification
}

func (f *fakeMailer) Compose(to string, n email.Notification) (email.Message, error) {
	if f.composeErr != nil {
		return email.Message{}, f.composeErr
	}
	f.composed = append(f.composed, n)
	return email.Message{To: to, Subject: n.Title, HTML: n.Message}, nil
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func event(typ core.NotificationType, to string) *amqp.NotificationEvent {
	return &amqp.NotificationEvent{
		NotificationID: 7,
		UserID:         1,
		Type:           string(typ),
		Title:          "Budget warning",
		Message:        "You have used 85% of your budget",
		RecipientName:  "Ada",
		RecipientEmail: to,
	}
}

func TestHandleNotification(t *testing.T) {
	tests := []struct {
		name     string
		mailer   *fakeMailer
		types    []core.NotificationType
		ev       *amqp.NotificationEvent
		wantErr  bool
		wantSent int
	}{
		{"delivers", &fakeMailer{}, nil, event(core.NotificationBudgetAlert, "ada@example.com"), false, 1},
		{"filtered type", &fakeMailer{}, []core.NotificationType{core.NotificationBudgetAlert}, event(core.NotificationSuccess, "ada@example.com"), false, 0},
		{"allowed type", &fakeMailer{}, []core.NotificationType{core.NotificationBudgetAlert}, event(core.NotificationBudgetAlert, "ada@example.com"), false, 1},
		{"no recipient", &fakeMailer{}, nil, event(core.NotificationBudgetAlert, ""), false, 0},
		{"compose failure dropped", &fakeMailer{composeErr: errors.New("template")}, nil, event(core.NotificationSystem, "ada@example.com"), false, 0},
		{"send failure retried", &fakeMailer{sendErr: errors.New("smtp down")}, nil, event(core.NotificationSystem, "ada@example.com"), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewNotificationWorker(tt.mailer, nil, tt.types...)
			err := w.HandleNotification(context.Background(), tt.ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleNotification() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(tt.mailer.sent) != tt.wantSent {
				t.Errorf("sent %d emails, want %d", len(tt.mailer.sent), tt.wantSent)
			}
		})
	}
}

func TestHandleNotificationPassesContent(t *testing.T) {
	m := &fakeMailer{}
	w := NewNotificationWorker(m, nil)
	if err := w.HandleNotification(context.Background(), event(core.NotificationBudgetAlert, "ada@example.com")); err != nil {
		t.Fatal(err)
	}
	got := m.composed[0]
	if got.RecipientName != "Ada" || got.Type != core.NotificationBudgetAlert || got.Title != "Budget warning" {
		t.Errorf("composed = %+v", got)
	}
	if m.sent[0].To != "ada@example.com" {
		t.Errorf("sent to %q", m.sent[0].To)
	}
}

var _ amqp.Handler = (&NotificationWorker{}).HandleNotification
