// Package session models one playground socket bound to a bot and the
// user that opened it.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/pkg/serrors"
)

var (
	ErrSessionClosed     = serrors.Processing("PLAYGROUND_SESSION_CLOSED", "playground session is closed")
	ErrInvalidTransition = serrors.Processing("PLAYGROUND_INVALID_TRANSITION", "invalid playground session transition")
	ErrRateLimited       = serrors.Validation("PLAYGROUND_RATE_LIMITED", "too many playground messages")
)

type State int

const (
	StateHandshake State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes follow RFC 6455.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Session is safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	uid       uuid.UUID
	botUID    uuid.UUID
	userUID   uuid.UUID
	state     State
	closeCode int
	openedAt  time.Time
	closedAt  time.Time
}

func New(botUID, userUID uuid.UUID) *Session {
	return &Session{
		uid:      uuid.New(),
		botUID:   botUID,
		userUID:  userUID,
		state:    StateHandshake,
		openedAt: time.Now().UTC(),
	}
}

func (s *Session) UID() uuid.UUID      { return s.uid }
func (s *Session) BotUID() uuid.UUID   { return s.botUID }
func (s *Session) UserUID() uuid.UUID  { return s.userUID }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// CloseCode is zero until the session is closed.
func (s *Session) CloseCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *Session) ClosedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedAt
}

// Accept moves a session out of the handshake once access was granted.
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshake {
		return ErrInvalidTransition.WithMessage("cannot accept a %s session", s.state)
	}
	s.state = StateConnected
	return nil
}

// Close records code and reports whether this call closed the session.
// Later calls are no-ops and keep the first code.
func (s *Session) Close(code int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.closeCode = code
	s.closedAt = time.Now().UTC()
	return true
}
