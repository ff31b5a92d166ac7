package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
)

// ProcessIncomingMessage is what every channel adapter sends for one
// inbound text.
type ProcessIncomingMessage struct {
	Platform       bot.Platform `validate:"required"`
	BotUID         uuid.UUID    `validate:"required"`
	SenderID       string       `validate:"required"`
	SenderNumber   string
	SenderNickname string
	Content        string `validate:"required"`
	// Timestamp defaults to now; non-UTC values are converted.
	Timestamp time.Time
}

type Result struct {
	ConversationUID     uuid.UUID
	UserMessageUID      uuid.UUID
	AIResponseGenerated bool
	AIMessageUID        uuid.UUID
	AIResponseContent   string
	Message             string
}

// Reply is the text a channel should send back: the assistant turn when
// there is one, the status message otherwise.
func (r Result) Reply() string {
	if r.AIResponseContent != "" {
		return r.AIResponseContent
	}
	return r.Message
}

type GetConversation struct {
	UserUID         uuid.UUID `validate:"required"`
	ConversationUID uuid.UUID `validate:"required"`
}

type ListBotConversations struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}
