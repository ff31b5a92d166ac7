package accountlink

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/pkg/serrors"
)

var (
	ErrLinkNotFound      = serrors.NotFound("TELEGRAM_LINK_NOT_FOUND", "telegram account link not found")
	ErrLinkAlreadyExists = serrors.Conflict("TELEGRAM_LINK_ALREADY_EXISTS", "telegram account link already exists")
	ErrAuth              = serrors.Authorization("TELEGRAM_AUTH_ERROR", "telegram authorization failed")
	ErrInvalidPhone      = serrors.Validation("INVALID_PHONE_NUMBER", "invalid phone number")
	ErrInvalidRequest    = serrors.Validation("INVALID_TELEGRAM_REQUEST", "invalid telegram link request")
)

// Link binds a Telegram user account, identified by its phone number, to a
// bot. A link is provisional while a login code is pending, active once the
// code was accepted and inactive after it was switched off.
type Link interface {
	UID() uuid.UUID
	BotUID() uuid.UUID
	LinkerUserUID() uuid.UUID
	PhoneNumber() string
	TelegramUserID() int64
	Username() string
	Session() []byte
	PhoneCodeHash() string
	IsActive() bool
	IsProvisional() bool
	LastConnectedAt() time.Time
	CreatedAt() time.Time
	UpdatedAt() time.Time

	// Relink points the link at botUID and linker and replaces the pending
	// login material. An active link drops back to provisional.
	Relink(botUID, linker uuid.UUID, phoneCodeHash string, session []byte)
	Activate(session []byte, telegramUserID int64, username string) error
	Reassign(botUID uuid.UUID) error
	Deactivate()
	MarkConnected(at time.Time)

	PullEvents() []any
}

type link struct {
	events
	uid             uuid.UUID
	botUID          uuid.UUID
	linkerUserUID   uuid.UUID
	phoneNumber     string
	telegramUserID  int64
	username        string
	session         []byte
	phoneCodeHash   string
	isActive        bool
	lastConnectedAt time.Time
	createdAt       time.Time
	updatedAt       time.Time
}

type Option func(*link)

func WithUID(uid uuid.UUID) Option {
	return func(l *link) {
		if uid != uuid.Nil {
			l.uid = uid
		}
	}
}

func WithPending(phoneCodeHash string, session []byte) Option {
	return func(l *link) {
		l.phoneCodeHash = phoneCodeHash
		l.session = bytes.Clone(session)
	}
}

func WithAccount(telegramUserID int64, username string) Option {
	return func(l *link) {
		l.telegramUserID = telegramUserID
		l.username = username
	}
}

func WithActive(active bool) Option {
	return func(l *link) {
		l.isActive = active
	}
}

func WithLastConnectedAt(t time.Time) Option {
	return func(l *link) {
		l.lastConnectedAt = t
	}
}

func WithTimestamps(createdAt, updatedAt time.Time) Option {
	return func(l *link) {
		if !createdAt.IsZero() {
			l.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			l.updatedAt = updatedAt
		}
	}
}

// New rehydrates a link without recording events.
func New(botUID, linker uuid.UUID, phone string, opts ...Option) Link {
	now := time.Now().UTC()
	l := &link{
		uid:           uuid.New(),
		botUID:        botUID,
		linkerUserUID: linker,
		phoneNumber:   phone,
		createdAt:     now,
		updatedAt:     now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NormalizePhone strips the formatting users tend to type around numbers.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone.WithMessage("unexpected %q in phone number", r)
		}
	}
	out := b.String()
	if len(strings.TrimPrefix(out, "+")) < 3 {
		return "", ErrInvalidPhone.WithMessage("phone number %q is too short", phone)
	}
	return out, nil
}

// Request starts a provisional link for a login code that was just sent.
func Request(botUID, linker uuid.UUID, phone, phoneCodeHash string, session []byte) (Link, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if phoneCodeHash == "" {
		return nil, ErrAuth.WithMessage("login code request returned no phone code hash")
	}
	l := New(botUID, linker, normalized, WithPending(phoneCodeHash, session)).(*link)
	l.record(CodeRequestedEvent{LinkUID: l.uid, BotUID: botUID, LinkerUserUID: linker})
	return l, nil
}

func (l *link) UID() uuid.UUID             { return l.uid }
func (l *link) BotUID() uuid.UUID          { return l.botUID }
func (l *link) LinkerUserUID() uuid.UUID   { return l.linkerUserUID }
func (l *link) PhoneNumber() string        { return l.phoneNumber }
func (l *link) TelegramUserID() int64      { return l.telegramUserID }
func (l *link) Username() string           { return l.username }
func (l *link) Session() []byte            { return bytes.Clone(l.session) }
func (l *link) PhoneCodeHash() string      { return l.phoneCodeHash }
func (l *link) IsActive() bool             { return l.isActive }
func (l *link) IsProvisional() bool        { return !l.isActive && l.phoneCodeHash != "" }
func (l *link) LastConnectedAt() time.Time { return l.lastConnectedAt }
func (l *link) CreatedAt() time.Time       { return l.createdAt }
func (l *link) UpdatedAt() time.Time       { return l.updatedAt }

func (l *link) touch() {
	l.updatedAt = time.Now().UTC()
}

func (l *link) Relink(botUID, linker uuid.UUID, phoneCodeHash string, session []byte) {
	l.botUID = botUID
	l.linkerUserUID = linker
	l.phoneCodeHash = phoneCodeHash
	l.session = bytes.Clone(session)
	l.isActive = false
	l.touch()
	l.record(CodeRequestedEvent{LinkUID: l.uid, BotUID: botUID, LinkerUserUID: linker})
}

func (l *link) Activate(session []byte, telegramUserID int64, username string) error {
	if !l.IsProvisional() {
		return ErrAuth.WithMessage("link %s has no pending login code", l.uid)
	}
	l.session = bytes.Clone(session)
	l.telegramUserID = telegramUserID
	l.username = username
	l.phoneCodeHash = ""
	l.isActive = true
	l.lastConnectedAt = time.Now().UTC()
	l.touch()
	l.record(ActivatedEvent{LinkUID: l.uid, BotUID: l.botUID, TelegramUserID: telegramUserID})
	return nil
}

func (l *link) Reassign(botUID uuid.UUID) error {
	if botUID == uuid.Nil {
		return ErrAuth.WithMessage("cannot reassign link %s to an empty bot", l.uid)
	}
	if botUID == l.botUID {
		return nil
	}
	previous := l.botUID
	l.botUID = botUID
	l.touch()
	l.record(ReassignedEvent{LinkUID: l.uid, From: previous, To: botUID, Active: l.isActive})
	return nil
}

// Deactivate switches the link off and forgets its session material.
func (l *link) Deactivate() {
	if !l.isActive && l.phoneCodeHash == "" && l.session == nil {
		return
	}
	l.isActive = false
	l.phoneCodeHash = ""
	l.session = nil
	l.touch()
	l.record(DeactivatedEvent{LinkUID: l.uid, BotUID: l.botUID})
}

func (l *link) MarkConnected(at time.Time) {
	l.lastConnectedAt = at.UTC()
	l.touch()
}
