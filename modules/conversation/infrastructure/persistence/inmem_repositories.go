package persistence

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/memstore"
)

const (
	conversationsTable = "conversations"
	messagesTable      = "messages"
)

func inTx(ctx context.Context, store *memstore.Store, fn func(tx *memstore.Tx) error) error {
	return store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		return fn(tx)
	})
}

type InmemConversationRepository struct {
	store    *memstore.Store
	messages *InmemMessageRepository
}

func NewInmemConversationRepository(store *memstore.Store) *InmemConversationRepository {
	return &InmemConversationRepository{store: store, messages: NewInmemMessageRepository(store)}
}

func (r *InmemConversationRepository) Create(ctx context.Context, c conversation.Conversation) error {
	m := ToDBConversation(c)
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		taken := memstore.Filter(tx, conversationsTable, func(existing models.Conversation) bool {
			return existing.Platform == m.Platform && existing.SenderID == m.SenderID && existing.BotID == m.BotID
		})
		if len(taken) > 0 {
			return conversation.ErrConversationAlreadyExists.WithMessage(
				"conversation for %s sender %s on bot %s already exists", m.Platform, m.SenderID, m.BotID,
			)
		}
		tx.Put(conversationsTable, m.ID, m)
		return nil
	})
}

func (r *InmemConversationRepository) Update(ctx context.Context, c conversation.Conversation) error {
	m := ToDBConversation(c)
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(conversationsTable, m.ID); !ok {
			return conversation.ErrConversationNotFound.WithMessage("conversation %s not found", m.ID)
		}
		tx.Put(conversationsTable, m.ID, m)
		return nil
	})
}

func (r *InmemConversationRepository) FindByUID(ctx context.Context, uid uuid.UUID) (conversation.Conversation, error) {
	id := uid.String()
	return r.findOne(ctx, func(m models.Conversation) bool { return m.ID == id })
}

func (r *InmemConversationRepository) FindBySender(
	ctx context.Context,
	platform bot.Platform,
	senderID string,
	botUID uuid.UUID,
) (conversation.Conversation, error) {
	botID := botUID.String()
	return r.findOne(ctx, func(m models.Conversation) bool {
		return m.Platform == string(platform) && m.SenderID == senderID && m.BotID == botID
	})
}

func (r *InmemConversationRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]conversation.Conversation, error) {
	botID := botUID.String()
	out := make([]conversation.Conversation, 0)
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		rows := memstore.Filter(tx, conversationsTable, func(m models.Conversation) bool { return m.BotID == botID })
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].UpdatedAt.After(rows[j].UpdatedAt) })
		for _, m := range rows {
			c, err := ToDomainConversation(m, nil)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (r *InmemConversationRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if !tx.Delete(conversationsTable, uid.String()) {
			return conversation.ErrConversationNotFound.WithMessage("conversation %s not found", uid)
		}
		id := uid.String()
		for _, m := range memstore.Filter(tx, messagesTable, func(m models.Message) bool { return m.ConversationID == id }) {
			tx.Delete(messagesTable, m.ID)
		}
		return nil
	})
}

func (r *InmemConversationRepository) findOne(ctx context.Context, keep func(models.Conversation) bool) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		rows := memstore.Filter(tx, conversationsTable, keep)
		if len(rows) == 0 {
			return conversation.ErrConversationNotFound
		}
		msgs, err := r.messages.load(tx, rows[0].ID)
		if err != nil {
			return err
		}
		c, err := ToDomainConversation(rows[0], msgs)
		out = c
		return err
	})
	return out, err
}

type InmemMessageRepository struct {
	store *memstore.Store
}

func NewInmemMessageRepository(store *memstore.Store) *InmemMessageRepository {
	return &InmemMessageRepository{store: store}
}

func (r *InmemMessageRepository) Create(ctx context.Context, msg conversation.Message) error {
	m := ToDBMessage(msg)
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, existing := range memstore.Filter[models.Message](tx, messagesTable, nil) {
			if existing.Seq > m.Seq {
				m.Seq = existing.Seq
			}
		}
		m.Seq++
		tx.Put(messagesTable, m.ID, m)
		return nil
	})
}

func (r *InmemMessageRepository) FindByConversation(ctx context.Context, conversationUID uuid.UUID) ([]conversation.Message, error) {
	var out []conversation.Message
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		msgs, err := r.load(tx, conversationUID.String())
		out = msgs
		return err
	})
	return out, err
}

func (r *InmemMessageRepository) load(tx *memstore.Tx, conversationID string) ([]conversation.Message, error) {
	rows := memstore.Filter(tx, messagesTable, func(m models.Message) bool { return m.ConversationID == conversationID })
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		}
		return rows[i].Seq < rows[j].Seq
	})
	out := make([]conversation.Message, 0, len(rows))
	for _, m := range rows {
		msg, err := ToDomainMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
