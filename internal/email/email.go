// Package email delivers notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notification is what a notification e-mail renders.
type Notification struct {
	RecipientName string
	Type          core.NotificationType
	Title         string
	Message       string
	CreatedAt     time.Time
}

type Message struct {
	To      string
	Subject string
	HTML    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	addr   string
	from   *mail.Address
	auth   smtp.Auth
	tmpl   *template.Template
	send   sendFunc
	logger *log.Logger
}

func New(cfg Config, logger *log.Logger) (*Sender, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("missing SMTP host")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	s := &Sender{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:   from,
		tmpl:   tmpl,
		send:   smtp.SendMail,
		logger: logger.WithComponent(log.ComponentEmail),
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

// Compose renders the notification e-mail for one recipient.
func (s *Sender) Compose(to string, n Notification) (Message, error) {
	var body bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&body, "notification.html", n); err != nil {
		return Message{}, fmt.Errorf("render notification: %w", err)
	}
	return Message{To: to, Subject: subjectFor(n), HTML: body.String()}, nil
}

func subjectFor(n Notification) string {
	switch n.Type {
	case core.NotificationBudgetAlert:
		return "[FinSight] Budget alert: " + n.Title
	case core.NotificationExpenseAlert:
		return "[FinSight] Large expense: " + n.Title
	default:
		return "[FinSight] " + n.Title
	}
}

// Send delivers msg. net/smtp has no context support, so ctx is only
// checked before dialing.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	raw := buildMIME(s.from, to, msg, time.Now())
	if err := s.send(s.addr, s.auth, s.from.Address, []string{to.Address}, raw); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	s.logger.InfoContext(ctx, "Email sent", "to", to.Address, "subject", msg.Subject)
	return nil
}

func buildMIME(from, to *mail.Address, msg Message, now time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}
