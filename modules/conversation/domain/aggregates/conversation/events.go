package conversation

import (
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
)

type events struct {
	buf []any
}

func (e *events) record(ev any) {
	e.buf = append(e.buf, ev)
}

// PullEvents returns the buffered events in record order and clears the buffer.
func (e *events) PullEvents() []any {
	out := e.buf
	e.buf = nil
	return out
}

type StartedEvent struct {
	ConversationUID uuid.UUID
	BotUID          uuid.UUID
	Platform        bot.Platform
	SenderID        string
}

type MessageAddedEvent struct {
	ConversationUID uuid.UUID
	MessageUID      uuid.UUID
	Platform        bot.Platform
	Role            Role
}
