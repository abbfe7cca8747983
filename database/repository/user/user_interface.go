package userRepo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the user does not exist.
var ErrNotFound = errors.New("user not found")

// UserDirectory is a read-only view over accounts owned by the identity
// service. The booking engine only needs display names.
type UserDirectory interface {
	GetDisplayName(ctx context.Context, userID string) (string, error)
}
