package firebase

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famledger/internal/domain/notification"
	"famledger/internal/models"
	"famledger/internal/shared/logging"
)

// MockSender is a mock implementation of sender
type MockSender struct {
	SendFunc func(ctx context.Context, message *messaging.Message) (string, error)
	sent     []*messaging.Message
}

func (m *MockSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	m.sent = append(m.sent, message)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, message)
	}
	return "projects/famledger/messages/1", nil
}

func TestDeliver(t *testing.T) {
	mock := &MockSender{}
	client := &Client{msgClient: mock, log: logging.Discard()}

	msg := notification.Render(42, "autopayoff.paid", map[string]string{"amount": "10", "currency": "KRW"})
	require.NoError(t, client.Deliver(context.Background(), &models.User{ID: 42}, msg))

	require.Len(t, mock.sent, 1)
	assert.Equal(t, "user-42", mock.sent[0].Topic)
	assert.Equal(t, msg.Title, mock.sent[0].Notification.Title)
	assert.Equal(t, "autopayoff.paid", mock.sent[0].Data["kind"])
}

func TestDeliver_Error(t *testing.T) {
	mock := &MockSender{SendFunc: func(ctx context.Context, message *messaging.Message) (string, error) {
		return "", errors.New("unavailable")
	}}
	client := &Client{msgClient: mock, log: logging.Discard()}

	err := client.Deliver(context.Background(), &models.User{ID: 1}, notification.Render(1, "x", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send FCM message")
}
