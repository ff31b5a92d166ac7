package bot

import "github.com/google/uuid"

// events buffers domain events until the owning command pulls them.
type events struct {
	buf []any
}

func (e *events) record(ev any) {
	e.buf = append(e.buf, ev)
}

// PullEvents returns the buffered events in emission order and clears the buffer.
func (e *events) PullEvents() []any {
	out := e.buf
	e.buf = nil
	return out
}

type CreatedEvent struct {
	BotUID   uuid.UUID
	OwnerUID uuid.UUID
	BotType  Type
}

type DetailsUpdatedEvent struct {
	BotUID uuid.UUID
}

type AISettingsUpdatedEvent struct {
	BotUID          uuid.UUID
	GenerationModel string
}

type TokenLimitUpdatedEvent struct {
	BotUID     uuid.UUID
	TokenLimit int
}

type ActivatedEvent struct {
	BotUID uuid.UUID
}

type SuspendedEvent struct {
	BotUID uuid.UUID
}

type OwnershipTransferredEvent struct {
	BotUID        uuid.UUID
	PreviousOwner uuid.UUID
	NewOwner      uuid.UUID
}

type DuplicatedEvent struct {
	SourceUID uuid.UUID
	BotUID    uuid.UUID
	OwnerUID  uuid.UUID
}

type DeletedEvent struct {
	BotUID      uuid.UUID
	ServiceUIDs []uuid.UUID
}

type ParticipantLinkedEvent struct {
	BotUID  uuid.UUID
	UserUID uuid.UUID
	Role    Role
}

type ParticipantUnlinkedEvent struct {
	BotUID  uuid.UUID
	UserUID uuid.UUID
}

type ParticipantRoleChangedEvent struct {
	BotUID  uuid.UUID
	UserUID uuid.UUID
	From    Role
	To      Role
}

type ServiceReservedEvent struct {
	BotUID     uuid.UUID
	ServiceUID uuid.UUID
	Platform   Platform
}

type ServiceLinkedEvent struct {
	BotUID           uuid.UUID
	ServiceUID       uuid.UUID
	Platform         Platform
	LinkedAccountUID uuid.UUID
}

type ServiceUnlinkedEvent struct {
	BotUID     uuid.UUID
	ServiceUID uuid.UUID
	Platform   Platform
	// LinkedAccountUID is the account the service was linked to before the release.
	LinkedAccountUID uuid.UUID
}

type DocumentUploadedEvent struct {
	BotUID      uuid.UUID
	DocumentUID uuid.UUID
	Filename    string
}

type DocumentDeletedEvent struct {
	BotUID      uuid.UUID
	DocumentUID uuid.UUID
}
