package mtproto

import (
	"bytes"
	"context"
	"sync"

	"github.com/gotd/td/session"
)

// sessionStorage keeps the session material of one client in memory. The
// session manager persists the bytes on the account link.
type sessionStorage struct {
	mu   sync.Mutex
	data []byte
}

var _ session.Storage = (*sessionStorage)(nil)

func newSessionStorage(data []byte) *sessionStorage {
	return &sessionStorage{data: bytes.Clone(data)}
}

func (s *sessionStorage) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return bytes.Clone(s.data), nil
}

func (s *sessionStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = bytes.Clone(data)
	return nil
}

func (s *sessionStorage) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.data)
}
