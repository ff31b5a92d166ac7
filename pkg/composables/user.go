package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/pkg/constants"
)

var ErrUnauthorized = errors.New("user not found in context")

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.UserIDKey, userID)
}

// UseUserID returns the authenticated user's uid.
func UseUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.UserIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrUnauthorized
	}
	return id, nil
}
