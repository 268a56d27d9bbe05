// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"

	"famledger/internal/domain/notification"
	"famledger/internal/models"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender implements notification.Channel over SMTP.
type Sender struct {
	cfg  Config
	send func(e *email.Email) error
}

var _ notification.Channel = (*Sender)(nil)

// NewSender creates a new SMTP sender
func NewSender(cfg Config) *Sender {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Sender{
		cfg: cfg,
		send: func(e *email.Email) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *Sender) Name() string { return "email" }

// Deliver mails msg to the user. Users without an address are skipped.
func (s *Sender) Deliver(ctx context.Context, user *models.User, msg notification.Message) error {
	if user.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{user.Email}
	e.Subject = msg.Title
	e.Text = []byte(greeting(user) + msg.Body + "\n")
	e.Headers.Set("X-Famledger-Kind", msg.Kind)

	if err := s.send(e); err != nil {
		return fmt.Errorf("failed to send email to user %d: %w", user.ID, err)
	}
	return nil
}

func greeting(user *models.User) string {
	if user.Name == "" {
		return "Hello,\n\n"
	}
	return "Hello " + user.Name + ",\n\n"
}
