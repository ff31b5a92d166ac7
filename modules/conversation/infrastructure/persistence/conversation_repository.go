package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/repo"
)

// ConversationSenderKey is the unique index over (platform, sender_id, bot_id).
const ConversationSenderKey = "conversations_platform_sender_id_bot_id_key"

const (
	conversationFindQuery = `
        SELECT
            c.id,
            c.owner_id,
            c.bot_id,
            c.bot_name_snapshot,
            c.platform,
            c.sender_id,
            c.sender_number,
            c.sender_nickname,
            c.crm_catalog_id,
            c.created_at,
            c.updated_at
        FROM conversations c`

	conversationUpdateQuery = `
        UPDATE conversations
        SET bot_name_snapshot = $1, crm_catalog_id = $2, sender_number = $3, sender_nickname = $4, updated_at = $5
        WHERE id = $6`

	conversationDeleteQuery = `DELETE FROM conversations WHERE id = $1`

	messageFindQuery = `
        SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp, m.tokens_user, m.tokens_ai, m.seq
        FROM messages m
        WHERE m.conversation_id = $1
        ORDER BY m.timestamp, m.seq`
)

type PgConversationRepository struct {
	messages *PgMessageRepository
}

func NewConversationRepository() *PgConversationRepository {
	return &PgConversationRepository{messages: NewMessageRepository()}
}

func (r *PgConversationRepository) Create(ctx context.Context, c conversation.Conversation) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBConversation(c)
	q := repo.Insert("conversations", []string{
		"id", "owner_id", "bot_id", "bot_name_snapshot", "platform", "sender_id",
		"sender_number", "sender_nickname", "crm_catalog_id", "created_at", "updated_at",
	})
	if _, err := tx.Exec(ctx, q,
		m.ID, m.OwnerID, m.BotID, m.BotNameSnapshot, m.Platform, m.SenderID,
		m.SenderNumber, m.SenderNickname, m.CRMCatalogID, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		if repo.IsUniqueViolation(err, ConversationSenderKey) {
			return conversation.ErrConversationAlreadyExists.WithMessage(
				"conversation for %s sender %s on bot %s already exists", m.Platform, m.SenderID, m.BotID,
			)
		}
		return errors.Wrap(err, "failed to insert conversation")
	}
	return nil
}

func (r *PgConversationRepository) Update(ctx context.Context, c conversation.Conversation) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBConversation(c)
	tag, err := tx.Exec(ctx, conversationUpdateQuery, m.BotNameSnapshot, m.CRMCatalogID, m.SenderNumber, m.SenderNickname, m.UpdatedAt, m.ID)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update conversation %s", m.ID))
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrConversationNotFound.WithMessage("conversation %s not found", m.ID)
	}
	return nil
}

func (r *PgConversationRepository) FindByUID(ctx context.Context, uid uuid.UUID) (conversation.Conversation, error) {
	return r.findOne(ctx, repo.Join(conversationFindQuery, "WHERE c.id = $1"), uid.String())
}

func (r *PgConversationRepository) FindBySender(
	ctx context.Context,
	platform bot.Platform,
	senderID string,
	botUID uuid.UUID,
) (conversation.Conversation, error) {
	return r.findOne(ctx,
		repo.Join(conversationFindQuery, "WHERE c.platform = $1 AND c.sender_id = $2 AND c.bot_id = $3"),
		string(platform), senderID, botUID.String(),
	)
}

func (r *PgConversationRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]conversation.Conversation, error) {
	rows, err := r.query(ctx, repo.Join(conversationFindQuery, "WHERE c.bot_id = $1", "ORDER BY c.updated_at DESC"), botUID.String())
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Conversation, 0, len(rows))
	for _, m := range rows {
		c, err := ToDomainConversation(m, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *PgConversationRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, conversationDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete conversation %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrConversationNotFound.WithMessage("conversation %s not found", uid)
	}
	return nil
}

func (r *PgConversationRepository) findOne(ctx context.Context, query string, args ...interface{}) (conversation.Conversation, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, conversation.ErrConversationNotFound
	}
	id, err := parseUUID(rows[0].ID, "conversation")
	if err != nil {
		return nil, err
	}
	msgs, err := r.messages.FindByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToDomainConversation(rows[0], msgs)
}

func (r *PgConversationRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Conversation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer rows.Close()

	out := make([]models.Conversation, 0)
	for rows.Next() {
		var m models.Conversation
		if err := rows.Scan(
			&m.ID,
			&m.OwnerID,
			&m.BotID,
			&m.BotNameSnapshot,
			&m.Platform,
			&m.SenderID,
			&m.SenderNumber,
			&m.SenderNickname,
			&m.CRMCatalogID,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type PgMessageRepository struct{}

func NewMessageRepository() *PgMessageRepository {
	return &PgMessageRepository{}
}

func (r *PgMessageRepository) Create(ctx context.Context, msg conversation.Message) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBMessage(msg)
	q := repo.Insert("messages", []string{"id", "conversation_id", "role", "content", "timestamp", "tokens_user", "tokens_ai"})
	if _, err := tx.Exec(ctx, q, m.ID, m.ConversationID, m.Role, m.Content, m.Timestamp, m.TokensUser, m.TokensAI); err != nil {
		return errors.Wrap(err, "failed to insert message")
	}
	return nil
}

func (r *PgMessageRepository) FindByConversation(ctx context.Context, conversationUID uuid.UUID) ([]conversation.Message, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, messageFindQuery, conversationUID.String())
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query messages of conversation %s", conversationUID))
	}
	defer rows.Close()

	out := make([]conversation.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Timestamp, &m.TokensUser, &m.TokensAI, &m.Seq); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		msg, err := ToDomainMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
