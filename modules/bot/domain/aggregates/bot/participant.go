package bot

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Role sets used by command handlers.
var (
	RolesOwner            = []Role{RoleOwner}
	RolesOwnerAdmin       = []Role{RoleOwner, RoleAdmin}
	RolesOwnerAdminEditor = []Role{RoleOwner, RoleAdmin, RoleEditor}
	RolesAny              = []Role(nil)
)

// Allows reports whether role is in roles. An empty set allows every role.
func Allows(roles []Role, role Role) bool {
	if len(roles) == 0 {
		return true
	}
	return slices.Contains(roles, role)
}

type Participant interface {
	UID() uuid.UUID
	BotUID() uuid.UUID
	UserUID() uuid.UUID
	Role() Role
	CreatedAt() time.Time
	UpdatedAt() time.Time

	ChangeRole(role Role) error
	PullEvents() []any
}

type participant struct {
	events

	uid       uuid.UUID
	botUID    uuid.UUID
	userUID   uuid.UUID
	role      Role
	createdAt time.Time
	updatedAt time.Time
}

type ParticipantOption func(*participant)

func WithParticipantUID(uid uuid.UUID) ParticipantOption {
	return func(p *participant) {
		if uid != uuid.Nil {
			p.uid = uid
		}
	}
}

func WithParticipantTimestamps(createdAt, updatedAt time.Time) ParticipantOption {
	return func(p *participant) {
		if !createdAt.IsZero() {
			p.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			p.updatedAt = updatedAt
		}
	}
}

func NewParticipant(botUID, userUID uuid.UUID, role Role, opts ...ParticipantOption) Participant {
	now := time.Now().UTC()
	p := &participant{
		uid:       uuid.New(),
		botUID:    botUID,
		userUID:   userUID,
		role:      role,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewOwnerParticipant is the row synthesized when a bot is created or
// changes hands.
func NewOwnerParticipant(botUID, ownerUID uuid.UUID) Participant {
	return NewParticipant(botUID, ownerUID, RoleOwner)
}

// LinkParticipant creates a non-owner participant. Owners are only ever
// created through bot creation or ownership transfer.
func LinkParticipant(botUID, userUID uuid.UUID, role Role) (Participant, error) {
	if !role.IsValid() {
		return nil, ErrInvalidBotDetails.WithMessage("unknown role %q", role)
	}
	if role == RoleOwner {
		return nil, ErrOwnerImmutable.WithMessage("owner participant can only change through ownership transfer")
	}
	p := NewParticipant(botUID, userUID, role).(*participant)
	p.record(ParticipantLinkedEvent{BotUID: botUID, UserUID: userUID, Role: role})
	return p, nil
}

func (p *participant) UID() uuid.UUID       { return p.uid }
func (p *participant) BotUID() uuid.UUID    { return p.botUID }
func (p *participant) UserUID() uuid.UUID   { return p.userUID }
func (p *participant) Role() Role           { return p.role }
func (p *participant) CreatedAt() time.Time { return p.createdAt }
func (p *participant) UpdatedAt() time.Time { return p.updatedAt }

func (p *participant) ChangeRole(role Role) error {
	if !role.IsValid() {
		return ErrInvalidBotDetails.WithMessage("unknown role %q", role)
	}
	if p.role == RoleOwner || role == RoleOwner {
		return ErrOwnerImmutable.WithMessage("owner participant can only change through ownership transfer")
	}
	if p.role == role {
		return nil
	}
	prev := p.role
	p.role = role
	p.updatedAt = time.Now().UTC()
	p.record(ParticipantRoleChangedEvent{BotUID: p.botUID, UserUID: p.userUID, From: prev, To: role})
	return nil
}
