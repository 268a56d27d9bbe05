package notification

import (
	"context"

	"famledger/internal/models"
)

// Channel delivers a rendered message to one user over one medium.
// Implemented by the Firebase and e-mail clients in the infrastructure layer.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, user *models.User, msg Message) error
}
