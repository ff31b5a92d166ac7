package dtos

import (
	"time"

	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
)

type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUser int       `json:"tokens_user"`
	TokensAI   int       `json:"tokens_ai"`
}

type Conversation struct {
	ID             string    `json:"id"`
	BotID          string    `json:"bot_id"`
	BotName        string    `json:"bot_name"`
	Platform       string    `json:"platform"`
	SenderID       string    `json:"sender_id"`
	SenderNumber   string    `json:"sender_number,omitempty"`
	SenderNickname string    `json:"sender_nickname,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Messages       []Message `json:"messages,omitempty"`
}

type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

func ToMessage(m conversation.Message) Message {
	return Message{
		ID:         m.UID().String(),
		Role:       string(m.Role()),
		Content:    m.Content(),
		Timestamp:  m.Timestamp(),
		TokensUser: m.TokensUser(),
		TokensAI:   m.TokensAI(),
	}
}

// ToConversation maps c; messages are included only when withMessages is set.
func ToConversation(c conversation.Conversation, withMessages bool) Conversation {
	p := c.Participant()
	out := Conversation{
		ID:             c.UID().String(),
		BotID:          c.BotUID().String(),
		BotName:        c.BotNameSnapshot(),
		Platform:       string(c.Platform()),
		SenderID:       p.SenderID,
		SenderNumber:   p.SenderNumber,
		SenderNickname: p.SenderNickname,
		CreatedAt:      c.CreatedAt(),
		UpdatedAt:      c.UpdatedAt(),
	}
	if withMessages {
		msgs := c.Messages()
		out.Messages = make([]Message, 0, len(msgs))
		for _, m := range msgs {
			out.Messages = append(out.Messages, ToMessage(m))
		}
	}
	return out
}
