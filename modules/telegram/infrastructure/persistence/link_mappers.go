package persistence

import (
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/persistence/models"
)

func ToDBLink(l accountlink.Link) models.AccountLink {
	return models.AccountLink{
		ID:              l.UID().String(),
		BotID:           l.BotUID().String(),
		LinkerUserID:    l.LinkerUserUID().String(),
		PhoneNumber:     l.PhoneNumber(),
		TelegramUserID:  sql.NullInt64{Int64: l.TelegramUserID(), Valid: l.TelegramUserID() != 0},
		Username:        sql.NullString{String: l.Username(), Valid: l.Username() != ""},
		SessionMaterial: l.Session(),
		PhoneCodeHash:   sql.NullString{String: l.PhoneCodeHash(), Valid: l.PhoneCodeHash() != ""},
		IsActive:        l.IsActive(),
		LastConnectedAt: sql.NullTime{Time: l.LastConnectedAt(), Valid: !l.LastConnectedAt().IsZero()},
		CreatedAt:       l.CreatedAt(),
		UpdatedAt:       l.UpdatedAt(),
	}
}

func ToDomainLink(m models.AccountLink) (accountlink.Link, error) {
	ids := make([]uuid.UUID, 3)
	for i, raw := range []string{m.ID, m.BotID, m.LinkerUserID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to parse UUID from string: %s", raw))
		}
		ids[i] = id
	}
	return accountlink.New(ids[1], ids[2], m.PhoneNumber,
		accountlink.WithUID(ids[0]),
		accountlink.WithPending(m.PhoneCodeHash.String, m.SessionMaterial),
		accountlink.WithAccount(m.TelegramUserID.Int64, m.Username.String),
		accountlink.WithActive(m.IsActive),
		accountlink.WithLastConnectedAt(m.LastConnectedAt.Time),
		accountlink.WithTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}
