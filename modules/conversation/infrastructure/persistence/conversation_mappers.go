package persistence

import (
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence/models"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseUUID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, fmt.Sprintf("failed to parse %s UUID from string: %s", what, s))
	}
	return id, nil
}

func ToDBConversation(c conversation.Conversation) models.Conversation {
	p := c.Participant()
	return models.Conversation{
		ID:              c.UID().String(),
		OwnerID:         c.OwnerUID().String(),
		BotID:           c.BotUID().String(),
		BotNameSnapshot: nullString(c.BotNameSnapshot()),
		Platform:        string(c.Platform()),
		SenderID:        p.SenderID,
		SenderNumber:    nullString(p.SenderNumber),
		SenderNickname:  nullString(p.SenderNickname),
		CRMCatalogID:    nullString(c.CRMCatalogID()),
		CreatedAt:       c.CreatedAt(),
		UpdatedAt:       c.UpdatedAt(),
	}
}

func ToDomainConversation(m models.Conversation, msgs []conversation.Message) (conversation.Conversation, error) {
	id, err := parseUUID(m.ID, "conversation")
	if err != nil {
		return nil, err
	}
	ownerID, err := parseUUID(m.OwnerID, "owner")
	if err != nil {
		return nil, err
	}
	botID, err := parseUUID(m.BotID, "bot")
	if err != nil {
		return nil, err
	}
	return conversation.New(
		ownerID,
		botID,
		bot.Platform(m.Platform),
		conversation.Participant{
			SenderID:       m.SenderID,
			SenderNumber:   m.SenderNumber.String,
			SenderNickname: m.SenderNickname.String,
		},
		conversation.WithUID(id),
		conversation.WithBotNameSnapshot(m.BotNameSnapshot.String),
		conversation.WithCRMCatalogID(m.CRMCatalogID.String),
		conversation.WithMessages(msgs),
		conversation.WithTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}

func ToDBMessage(msg conversation.Message) models.Message {
	return models.Message{
		ID:             msg.UID().String(),
		ConversationID: msg.ConversationUID().String(),
		Role:           string(msg.Role()),
		Content:        msg.Content(),
		Timestamp:      msg.Timestamp(),
		TokensUser:     msg.TokensUser(),
		TokensAI:       msg.TokensAI(),
	}
}

func ToDomainMessage(m models.Message) (conversation.Message, error) {
	id, err := parseUUID(m.ID, "message")
	if err != nil {
		return nil, err
	}
	convID, err := parseUUID(m.ConversationID, "conversation")
	if err != nil {
		return nil, err
	}
	return conversation.NewMessage(
		convID,
		conversation.Role(m.Role),
		m.Content,
		m.Timestamp,
		conversation.WithMessageUID(id),
		conversation.WithTokens(m.TokensUser, m.TokensAI),
	), nil
}
