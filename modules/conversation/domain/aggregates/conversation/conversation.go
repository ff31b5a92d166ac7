package conversation

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/pkg/serrors"
)

var (
	ErrConversationNotFound      = serrors.NotFound("CONVERSATION_NOT_FOUND", "conversation not found")
	ErrConversationAlreadyExists = serrors.Conflict("CONVERSATION_ALREADY_EXISTS", "conversation already exists")
	ErrInvalidConversation       = serrors.Validation("INVALID_CONVERSATION", "invalid conversation")
)

// Participant is the external sender on the messenger side.
type Participant struct {
	SenderID       string
	SenderNumber   string
	SenderNickname string
}

type Conversation interface {
	UID() uuid.UUID
	OwnerUID() uuid.UUID
	BotUID() uuid.UUID
	BotNameSnapshot() string
	Platform() bot.Platform
	Participant() Participant
	CRMCatalogID() string
	Messages() []Message
	CreatedAt() time.Time
	UpdatedAt() time.Time

	// AddMessage appends m keeping the list ordered by timestamp. It reports
	// false and changes nothing when a message with the same uid is present.
	AddMessage(m Message) bool
	SetBotNameSnapshot(name string)
	SetCRMCatalogID(id string)
	PullEvents() []any
}

type conversation struct {
	events

	uid             uuid.UUID
	ownerUID        uuid.UUID
	botUID          uuid.UUID
	botNameSnapshot string
	platform        bot.Platform
	participant     Participant
	crmCatalogID    string
	messages        []Message
	createdAt       time.Time
	updatedAt       time.Time
}

type Option func(*conversation)

func WithUID(uid uuid.UUID) Option {
	return func(c *conversation) {
		if uid != uuid.Nil {
			c.uid = uid
		}
	}
}

func WithBotNameSnapshot(name string) Option {
	return func(c *conversation) {
		c.botNameSnapshot = name
	}
}

func WithCRMCatalogID(id string) Option {
	return func(c *conversation) {
		c.crmCatalogID = id
	}
}

// WithMessages preloads stored messages. They are ordered like AddMessage
// would order them without recording events.
func WithMessages(msgs []Message) Option {
	return func(c *conversation) {
		for _, m := range msgs {
			c.insert(m)
		}
	}
}

func WithTimestamps(createdAt, updatedAt time.Time) Option {
	return func(c *conversation) {
		if !createdAt.IsZero() {
			c.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			c.updatedAt = updatedAt
		}
	}
}

// New rehydrates a conversation without recording events.
func New(ownerUID, botUID uuid.UUID, platform bot.Platform, participant Participant, opts ...Option) Conversation {
	now := time.Now().UTC()
	c := &conversation{
		uid:         uuid.New(),
		ownerUID:    ownerUID,
		botUID:      botUID,
		platform:    platform,
		participant: participant,
		messages:    make([]Message, 0),
		createdAt:   now,
		updatedAt:   now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a new empty conversation thread.
func Start(ownerUID, botUID uuid.UUID, platform bot.Platform, participant Participant, botName string) (Conversation, error) {
	if botUID == uuid.Nil || ownerUID == uuid.Nil {
		return nil, ErrInvalidConversation.WithMessage("bot and owner are required")
	}
	if participant.SenderID == "" {
		return nil, ErrInvalidConversation.WithMessage("sender id is required")
	}
	c := New(ownerUID, botUID, platform, participant, WithBotNameSnapshot(botName)).(*conversation)
	c.record(StartedEvent{
		ConversationUID: c.uid,
		BotUID:          botUID,
		Platform:        platform,
		SenderID:        participant.SenderID,
	})
	return c, nil
}

func (c *conversation) UID() uuid.UUID           { return c.uid }
func (c *conversation) OwnerUID() uuid.UUID      { return c.ownerUID }
func (c *conversation) BotUID() uuid.UUID        { return c.botUID }
func (c *conversation) BotNameSnapshot() string  { return c.botNameSnapshot }
func (c *conversation) Platform() bot.Platform   { return c.platform }
func (c *conversation) Participant() Participant { return c.participant }
func (c *conversation) CRMCatalogID() string     { return c.crmCatalogID }
func (c *conversation) Messages() []Message      { return slices.Clone(c.messages) }
func (c *conversation) CreatedAt() time.Time     { return c.createdAt }
func (c *conversation) UpdatedAt() time.Time     { return c.updatedAt }

func (c *conversation) insert(m Message) bool {
	for _, existing := range c.messages {
		if existing.UID() == m.UID() {
			return false
		}
	}
	c.messages = append(c.messages, m)
	// stable: equal timestamps keep insertion order
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Timestamp().Before(c.messages[j].Timestamp())
	})
	return true
}

func (c *conversation) AddMessage(m Message) bool {
	if !c.insert(m) {
		return false
	}
	c.updatedAt = time.Now().UTC()
	c.record(MessageAddedEvent{
		ConversationUID: c.uid,
		MessageUID:      m.UID(),
		Platform:        c.platform,
		Role:            m.Role(),
	})
	return true
}

func (c *conversation) SetBotNameSnapshot(name string) {
	if c.botNameSnapshot == name {
		return
	}
	c.botNameSnapshot = name
	c.updatedAt = time.Now().UTC()
}

func (c *conversation) SetCRMCatalogID(id string) {
	if c.crmCatalogID == id {
		return
	}
	c.crmCatalogID = id
	c.updatedAt = time.Now().UTC()
}
