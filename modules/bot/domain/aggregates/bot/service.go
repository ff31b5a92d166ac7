package bot

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformTelegram   Platform = "telegram"
	PlatformWhatsApp   Platform = "whatsapp"
	PlatformInstagram  Platform = "instagram"
	PlatformPlayground Platform = "playground"
)

func (p Platform) IsValid() bool {
	switch p {
	case PlatformTelegram, PlatformWhatsApp, PlatformInstagram, PlatformPlayground:
		return true
	}
	return false
}

type ServiceStatus string

const (
	ServiceReserved ServiceStatus = "reserved"
	ServiceActive   ServiceStatus = "active"
)

// Service is a platform binding slot of a bot. It moves between reserved
// and active only.
type Service interface {
	UID() uuid.UUID
	BotUID() uuid.UUID
	Platform() Platform
	Status() ServiceStatus
	LinkedAccountUID() uuid.UUID
	Details() map[string]string
	CreatedAt() time.Time
	UpdatedAt() time.Time

	Activate(linkedAccountUID uuid.UUID, details map[string]string) error
	Release()
	PullEvents() []any
}

type service struct {
	events

	uid              uuid.UUID
	botUID           uuid.UUID
	platform         Platform
	status           ServiceStatus
	linkedAccountUID uuid.UUID
	details          map[string]string
	createdAt        time.Time
	updatedAt        time.Time
}

type ServiceOption func(*service)

func WithServiceUID(uid uuid.UUID) ServiceOption {
	return func(s *service) {
		if uid != uuid.Nil {
			s.uid = uid
		}
	}
}

// WithServiceState rehydrates status, linked account and details together.
func WithServiceState(status ServiceStatus, linked uuid.UUID, details map[string]string) ServiceOption {
	return func(s *service) {
		s.status = status
		s.linkedAccountUID = linked
		s.details = maps.Clone(details)
	}
}

func WithServiceTimestamps(createdAt, updatedAt time.Time) ServiceOption {
	return func(s *service) {
		if !createdAt.IsZero() {
			s.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			s.updatedAt = updatedAt
		}
	}
}

func NewService(botUID uuid.UUID, platform Platform, opts ...ServiceOption) Service {
	now := time.Now().UTC()
	s := &service{
		uid:       uuid.New(),
		botUID:    botUID,
		platform:  platform,
		status:    ServiceReserved,
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.details == nil {
		s.details = map[string]string{}
	}
	return s
}

// ReserveService creates a reserved slot and records ServiceReservedEvent.
func ReserveService(botUID uuid.UUID, platform Platform) (Service, error) {
	if !platform.IsValid() {
		return nil, ErrInvalidBotDetails.WithMessage("unknown platform %q", platform)
	}
	s := NewService(botUID, platform).(*service)
	s.record(ServiceReservedEvent{BotUID: botUID, ServiceUID: s.uid, Platform: platform})
	return s, nil
}

func (s *service) UID() uuid.UUID              { return s.uid }
func (s *service) BotUID() uuid.UUID           { return s.botUID }
func (s *service) Platform() Platform          { return s.platform }
func (s *service) Status() ServiceStatus       { return s.status }
func (s *service) LinkedAccountUID() uuid.UUID { return s.linkedAccountUID }
func (s *service) Details() map[string]string  { return maps.Clone(s.details) }
func (s *service) CreatedAt() time.Time        { return s.createdAt }
func (s *service) UpdatedAt() time.Time        { return s.updatedAt }

func (s *service) Activate(linkedAccountUID uuid.UUID, details map[string]string) error {
	if linkedAccountUID == uuid.Nil {
		return ErrInvalidBotDetails.WithMessage("activation requires a linked account")
	}
	if s.status == ServiceActive {
		if s.linkedAccountUID == linkedAccountUID {
			return nil
		}
		return ErrServiceAlreadyLinked.WithMessage("service %s is already linked to %s", s.uid, s.linkedAccountUID)
	}
	s.status = ServiceActive
	s.linkedAccountUID = linkedAccountUID
	s.details = maps.Clone(details)
	if s.details == nil {
		s.details = map[string]string{}
	}
	s.updatedAt = time.Now().UTC()
	s.record(ServiceLinkedEvent{
		BotUID:           s.botUID,
		ServiceUID:       s.uid,
		Platform:         s.platform,
		LinkedAccountUID: linkedAccountUID,
	})
	return nil
}

// Release returns the service to reserved, clearing the linked account and
// details. Releasing a reserved service does nothing.
func (s *service) Release() {
	if s.status == ServiceReserved {
		return
	}
	linked := s.linkedAccountUID
	s.status = ServiceReserved
	s.linkedAccountUID = uuid.Nil
	s.details = map[string]string{}
	s.updatedAt = time.Now().UTC()
	s.record(ServiceUnlinkedEvent{
		BotUID:           s.botUID,
		ServiceUID:       s.uid,
		Platform:         s.platform,
		LinkedAccountUID: linked,
	})
}

// CloneReserved copies s onto another bot as a fresh reserved slot.
func CloneReserved(s Service, botUID uuid.UUID) Service {
	return NewService(botUID, s.Platform())
}
