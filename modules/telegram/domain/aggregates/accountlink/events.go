package accountlink

import "github.com/google/uuid"

type events struct {
	buf []any
}

func (e *events) record(ev any) {
	e.buf = append(e.buf, ev)
}

func (e *events) PullEvents() []any {
	out := e.buf
	e.buf = nil
	return out
}

type CodeRequestedEvent struct {
	LinkUID       uuid.UUID
	BotUID        uuid.UUID
	LinkerUserUID uuid.UUID
}

type ActivatedEvent struct {
	LinkUID        uuid.UUID
	BotUID         uuid.UUID
	TelegramUserID int64
}

type ReassignedEvent struct {
	LinkUID uuid.UUID
	From    uuid.UUID
	To      uuid.UUID
	Active  bool
}

type DeactivatedEvent struct {
	LinkUID uuid.UUID
	BotUID  uuid.UUID
}
