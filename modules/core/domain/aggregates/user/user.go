package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/pkg/serrors"
)

var ErrUserNotFound = serrors.NotFound("USER_NOT_FOUND", "user not found")

type Repository interface {
	GetByUID(ctx context.Context, uid uuid.UUID) (User, error)
	GetByUIDs(ctx context.Context, uids []uuid.UUID) ([]User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User) (User, error)
}

type User interface {
	UID() uuid.UUID
	Email() string
	AvatarURL() string
	IsVerified() bool
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

type user struct {
	uid        uuid.UUID
	email      string
	avatarURL  string
	isVerified bool
	createdAt  time.Time
	updatedAt  time.Time
}

type Option func(*user)

func WithUID(uid uuid.UUID) Option {
	return func(u *user) {
		if uid != uuid.Nil {
			u.uid = uid
		}
	}
}

func WithAvatarURL(url string) Option {
	return func(u *user) {
		u.avatarURL = url
	}
}

func WithVerified(v bool) Option {
	return func(u *user) {
		u.isVerified = v
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(u *user) {
		if !t.IsZero() {
			u.createdAt = t
		}
	}
}

func WithUpdatedAt(t time.Time) Option {
	return func(u *user) {
		if !t.IsZero() {
			u.updatedAt = t
		}
	}
}

func New(email string, opts ...Option) User {
	now := time.Now().UTC()
	u := &user{
		uid:       uuid.New(),
		email:     NormalizeEmail(email),
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *user) UID() uuid.UUID       { return u.uid }
func (u *user) Email() string        { return u.email }
func (u *user) AvatarURL() string    { return u.avatarURL }
func (u *user) IsVerified() bool     { return u.isVerified }
func (u *user) CreatedAt() time.Time { return u.createdAt }
func (u *user) UpdatedAt() time.Time { return u.updatedAt }
