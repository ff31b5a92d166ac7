// Package messenger is the contract between the session manager and a
// messaging platform client.
package messenger

import (
	"context"
	"time"

	"github.com/iota-uz/bothub/pkg/serrors"
)

var (
	ErrRateLimit         = serrors.External("MESSENGER_RATE_LIMIT", "messenger rate limit exceeded")
	ErrAuthFailure       = serrors.External("MESSENGER_AUTH_FAILURE", "messenger rejected the credentials")
	ErrConnectionFailure = serrors.External("MESSENGER_CONNECTION_FAILURE", "messenger is unreachable")
	ErrGeneric           = serrors.External("MESSENGER_GENERIC", "messenger request failed")
)

// LoginCode is the result of asking the platform to send a login code.
// Session is the provisional material the code must be submitted with.
type LoginCode struct {
	PhoneCodeHash string
	Session       []byte
}

type Account struct {
	UserID   int64
	Username string
	Phone    string
}

type Authorization struct {
	Session []byte
	Account Account
}

// Incoming is one text message received by a listener.
type Incoming struct {
	SenderID       string
	SenderNumber   string
	SenderNickname string
	Content        string
	Timestamp      time.Time
}

// Handler processes an incoming message and returns the reply to send on
// the originating chat. An empty reply sends nothing.
type Handler func(ctx context.Context, msg Incoming) (string, error)

type Client interface {
	RequestLoginCode(ctx context.Context, phone string) (LoginCode, error)
	SubmitLoginCode(ctx context.Context, phone, code, phoneCodeHash string, session []byte) (Authorization, error)
	// Listen connects with session and feeds text messages to handler until
	// ctx is done or the connection fails.
	Listen(ctx context.Context, session []byte, handler Handler) error
	GetMe(ctx context.Context, session []byte) (Account, error)
	IsAuthorized(ctx context.Context, session []byte) (bool, error)
}
