package models

import (
	"time"

	"famledger/internal/shared/apperror"
)

var ErrUserNotFound = apperror.NotFound("user not found")

// User is the owner of accounts and obligations. Only the fields needed to
// address notifications are kept here.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
