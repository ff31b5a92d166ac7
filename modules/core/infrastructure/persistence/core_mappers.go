package persistence

import (
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence/models"
)

func ToDBUser(u user.User) models.User {
	return models.User{
		ID:         u.UID().String(),
		Email:      u.Email(),
		AvatarURL:  sql.NullString{String: u.AvatarURL(), Valid: u.AvatarURL() != ""},
		IsVerified: u.IsVerified(),
		CreatedAt:  u.CreatedAt(),
		UpdatedAt:  u.UpdatedAt(),
	}
}

func ToDomainUser(m models.User) (user.User, error) {
	uid, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to parse UUID from string: %s", m.ID))
	}
	return user.New(
		m.Email,
		user.WithUID(uid),
		user.WithAvatarURL(m.AvatarURL.String),
		user.WithVerified(m.IsVerified),
		user.WithCreatedAt(m.CreatedAt),
		user.WithUpdatedAt(m.UpdatedAt),
	), nil
}
