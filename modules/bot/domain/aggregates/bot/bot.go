package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxNameLength = 128

type Type string

const (
	TypeManager    Type = "manager"
	TypeSeller     Type = "seller"
	TypeConsultant Type = "consultant"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeManager, TypeSeller, TypeConsultant:
		return true
	}
	return false
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusSuspended:
		return true
	}
	return false
}

type Bot interface {
	UID() uuid.UUID
	OwnerUID() uuid.UUID
	Type() Type
	Name() string
	Status() Status
	Tariff() string
	AutoDeduction() bool
	CRMLeadID() string
	AISettings() AISettings
	Quota() Quota
	CreatedAt() time.Time
	UpdatedAt() time.Time

	UpdateAISettings(s AISettings)
	UpdateTokenLimit(n int) error
	UpdateDetails(d Details) error
	TransferOwnership(newOwner uuid.UUID) error
	Activate()
	Suspend()
	DeductTokens(n int) error
	Duplicate(newOwner uuid.UUID, tag string) Bot

	PullEvents() []any
}

// Details lists the descriptive fields UpdateDetails may change. Nil fields
// are left untouched. The bot type is fixed at creation.
type Details struct {
	Name          *string
	Tariff        *string
	AutoDeduction *bool
	CRMLeadID     *string
}

type bot struct {
	events

	uid           uuid.UUID
	ownerUID      uuid.UUID
	botType       Type
	name          string
	status        Status
	tariff        string
	autoDeduction bool
	crmLeadID     string
	aiSettings    AISettings
	quota         Quota
	createdAt     time.Time
	updatedAt     time.Time
}

type Option func(*bot)

func WithUID(uid uuid.UUID) Option {
	return func(b *bot) {
		if uid != uuid.Nil {
			b.uid = uid
		}
	}
}

func WithName(name string) Option {
	return func(b *bot) {
		b.name = strings.TrimSpace(name)
	}
}

func WithStatus(status Status) Option {
	return func(b *bot) {
		if status.IsValid() {
			b.status = status
		}
	}
}

func WithTariff(tariff string) Option {
	return func(b *bot) {
		b.tariff = tariff
	}
}

func WithAutoDeduction(v bool) Option {
	return func(b *bot) {
		b.autoDeduction = v
	}
}

func WithCRMLeadID(id string) Option {
	return func(b *bot) {
		b.crmLeadID = id
	}
}

func WithAISettings(s AISettings) Option {
	return func(b *bot) {
		b.aiSettings = s
	}
}

func WithQuota(q Quota) Option {
	return func(b *bot) {
		b.quota = q
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(b *bot) {
		if !t.IsZero() {
			b.createdAt = t
		}
	}
}

func WithUpdatedAt(t time.Time) Option {
	return func(b *bot) {
		if !t.IsZero() {
			b.updatedAt = t
		}
	}
}

// New builds a bot without recording any event. Persistence uses it to
// rehydrate stored rows; new bots go through Create.
func New(ownerUID uuid.UUID, botType Type, opts ...Option) Bot {
	now := time.Now().UTC()
	b := &bot{
		uid:        uuid.New(),
		ownerUID:   ownerUID,
		botType:    botType,
		status:     StatusDraft,
		aiSettings: DefaultAISettings(),
		createdAt:  now,
		updatedAt:  now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create validates the input and returns a draft bot with a CreatedEvent buffered.
func Create(ownerUID uuid.UUID, botType Type, opts ...Option) (Bot, error) {
	if ownerUID == uuid.Nil {
		return nil, ErrInvalidBotDetails.WithMessage("owner is required")
	}
	if !botType.IsValid() {
		return nil, ErrInvalidBotDetails.WithMessage("unknown bot type %q", botType)
	}
	b := New(ownerUID, botType, opts...).(*bot)
	if len(b.name) > MaxNameLength {
		return nil, ErrInvalidBotDetails.WithMessage("name is longer than %d characters", MaxNameLength)
	}
	b.status = StatusDraft
	b.record(CreatedEvent{BotUID: b.uid, OwnerUID: ownerUID, BotType: botType})
	return b, nil
}

func (b *bot) UID() uuid.UUID         { return b.uid }
func (b *bot) OwnerUID() uuid.UUID    { return b.ownerUID }
func (b *bot) Type() Type             { return b.botType }
func (b *bot) Name() string           { return b.name }
func (b *bot) Status() Status         { return b.status }
func (b *bot) Tariff() string         { return b.tariff }
func (b *bot) AutoDeduction() bool    { return b.autoDeduction }
func (b *bot) CRMLeadID() string      { return b.crmLeadID }
func (b *bot) AISettings() AISettings { return b.aiSettings }
func (b *bot) Quota() Quota           { return b.quota }
func (b *bot) CreatedAt() time.Time   { return b.createdAt }
func (b *bot) UpdatedAt() time.Time   { return b.updatedAt }

func (b *bot) touch() {
	b.updatedAt = time.Now().UTC()
}

func (b *bot) UpdateAISettings(s AISettings) {
	b.aiSettings = s
	b.touch()
	b.record(AISettingsUpdatedEvent{BotUID: b.uid, GenerationModel: s.GenerationModel()})
}

func (b *bot) UpdateTokenLimit(n int) error {
	q, err := FullQuota(n)
	if err != nil {
		return err
	}
	b.quota = q
	b.touch()
	b.record(TokenLimitUpdatedEvent{BotUID: b.uid, TokenLimit: n})
	return nil
}

func (b *bot) UpdateDetails(d Details) error {
	if d.Name != nil {
		name := strings.TrimSpace(*d.Name)
		if len(name) > MaxNameLength {
			return ErrInvalidBotDetails.WithMessage("name is longer than %d characters", MaxNameLength)
		}
		b.name = name
	}
	if d.Tariff != nil {
		b.tariff = *d.Tariff
	}
	if d.AutoDeduction != nil {
		b.autoDeduction = *d.AutoDeduction
	}
	if d.CRMLeadID != nil {
		b.crmLeadID = *d.CRMLeadID
	}
	b.touch()
	b.record(DetailsUpdatedEvent{BotUID: b.uid})
	return nil
}

func (b *bot) TransferOwnership(newOwner uuid.UUID) error {
	if newOwner == uuid.Nil {
		return ErrInvalidBotDetails.WithMessage("new owner is required")
	}
	if newOwner == b.ownerUID {
		return ErrCannotTransferToSelf
	}
	prev := b.ownerUID
	b.ownerUID = newOwner
	b.touch()
	b.record(OwnershipTransferredEvent{BotUID: b.uid, PreviousOwner: prev, NewOwner: newOwner})
	return nil
}

func (b *bot) Activate() {
	if b.status == StatusActive {
		return
	}
	b.status = StatusActive
	b.touch()
	b.record(ActivatedEvent{BotUID: b.uid})
}

func (b *bot) Suspend() {
	if b.status == StatusSuspended {
		return
	}
	b.status = StatusSuspended
	b.touch()
	b.record(SuspendedEvent{BotUID: b.uid})
}

func (b *bot) DeductTokens(n int) error {
	q, err := b.quota.Deduct(n)
	if err != nil {
		return err
	}
	b.quota = q
	b.touch()
	return nil
}

func (b *bot) Duplicate(newOwner uuid.UUID, tag string) Bot {
	base := b.name
	if base == "" {
		base = string(b.botType)
	}
	quota, _ := FullQuota(b.quota.tokenLimit)
	dup := New(newOwner, b.botType,
		WithName(fmt.Sprintf("%s_copy_%s", base, tag)),
		WithStatus(StatusDraft),
		WithTariff(b.tariff),
		WithAutoDeduction(b.autoDeduction),
		WithAISettings(b.aiSettings),
		WithQuota(quota),
	).(*bot)
	dup.record(DuplicatedEvent{SourceUID: b.uid, BotUID: dup.uid, OwnerUID: newOwner})
	return dup
}
