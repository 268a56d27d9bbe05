package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"famledger/internal/models"
	"famledger/internal/shared/messages"
)

// Service renders notifications and fans them out to every channel
type Service struct {
	users    models.UserRepository
	channels []Channel
	messages messages.Catalog
	log      logrus.FieldLogger
}

// NewService creates a new notification service. The log channel is always
// included.
func NewService(users models.UserRepository, log logrus.FieldLogger, channels ...Channel) *Service {
	all := append([]Channel{NewLogChannel(log)}, channels...)
	return &Service{users: users, channels: all, log: log}
}

// UseMessages overrides the built-in texts for the kinds in c.
func (s *Service) UseMessages(c messages.Catalog) {
	s.messages = c
}

func (s *Service) render(userID int64, kind string, payload map[string]string) Message {
	msg := Render(userID, kind, payload)
	if text, ok := s.messages.Lookup(kind); ok {
		msg.Title = text.Title
		if text.Body != "" {
			msg.Body = text.Expand(payload)
		}
	}
	return msg
}

// Notify delivers kind to userID on every channel. A failing channel does
// not stop the others; the failures are returned joined.
func (s *Service) Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %d for notification: %w", userID, err)
	}

	msg := s.render(userID, kind, payload)
	var errs []error
	for _, ch := range s.channels {
		if err := ch.Deliver(ctx, user, msg); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"channel": ch.Name(),
				"user_id": userID,
				"kind":    kind,
			}).Warn("Notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	log logrus.FieldLogger
}

// NewLogChannel creates a new log channel
func NewLogChannel(log logrus.FieldLogger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(ctx context.Context, user *models.User, msg Message) error {
	c.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"kind":     msg.Kind,
		"category": msg.Category,
		"title":    msg.Title,
	}).Info(msg.Body)
	return nil
}
