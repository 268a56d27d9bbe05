package firebase

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"famledger/internal/domain/notification"
	"famledger/internal/models"
)

// sender is the part of messaging.Client the channel uses.
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client implements notification.Channel using Firebase Cloud Messaging.
// Each user's devices subscribe to the topic returned by Topic.
type Client struct {
	msgClient sender
	log       logrus.FieldLogger
}

var _ notification.Channel = (*Client)(nil)

// NewClient initializes a Firebase app and returns an FCM client
func NewClient(ctx context.Context, credentialsFile string, log logrus.FieldLogger) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, log: log}, nil
}

// Topic is the FCM topic a user's devices subscribe to.
func Topic(userID int64) string {
	return "user-" + strconv.FormatInt(userID, 10)
}

func (c *Client) Name() string { return "fcm" }

// Deliver sends msg to the user's topic
func (c *Client) Deliver(ctx context.Context, user *models.User, msg notification.Message) error {
	message := &messaging.Message{
		Topic: Topic(user.ID),
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}

	id, err := c.msgClient.Send(ctx, message)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			return fmt.Errorf("invalid FCM message for topic %s: %w", message.Topic, err)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"topic":      message.Topic,
		"message_id": id,
		"kind":       msg.Kind,
	}).Debug("FCM message sent")
	return nil
}
