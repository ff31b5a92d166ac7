package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is immutable once built.
type Message interface {
	UID() uuid.UUID
	ConversationUID() uuid.UUID
	Role() Role
	Content() string
	Timestamp() time.Time
	TokensUser() int
	TokensAI() int
}

type message struct {
	uid             uuid.UUID
	conversationUID uuid.UUID
	role            Role
	content         string
	timestamp       time.Time
	tokensUser      int
	tokensAI        int
}

type MessageOption func(*message)

func WithMessageUID(uid uuid.UUID) MessageOption {
	return func(m *message) {
		if uid != uuid.Nil {
			m.uid = uid
		}
	}
}

func WithTokens(user, ai int) MessageOption {
	return func(m *message) {
		m.tokensUser = user
		m.tokensAI = ai
	}
}

// NewMessage builds a message stamped at ts, converted to UTC. A zero ts
// means now.
func NewMessage(conversationUID uuid.UUID, role Role, content string, ts time.Time, opts ...MessageOption) Message {
	if ts.IsZero() {
		ts = time.Now()
	}
	m := &message{
		uid:             uuid.New(),
		conversationUID: conversationUID,
		role:            role,
		content:         content,
		timestamp:       ts.UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *message) UID() uuid.UUID             { return m.uid }
func (m *message) ConversationUID() uuid.UUID { return m.conversationUID }
func (m *message) Role() Role                 { return m.role }
func (m *message) Content() string            { return m.content }
func (m *message) Timestamp() time.Time       { return m.timestamp }
func (m *message) TokensUser() int            { return m.tokensUser }
func (m *message) TokensAI() int              { return m.tokensAI }
