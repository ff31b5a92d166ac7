package mtproto

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
)

func TestMapError(t *testing.T) {
	t.Parallel()
	require.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)

	assert.ErrorIs(t, mapError(tgerr.New(420, "FLOOD_WAIT_30")), messenger.ErrRateLimit)
	assert.ErrorIs(t, mapError(tgerr.New(400, "PHONE_CODE_INVALID")), messenger.ErrAuthFailure)
	assert.ErrorIs(t, mapError(auth.ErrPasswordAuthNeeded), messenger.ErrAuthFailure)
	assert.ErrorIs(t, mapError(&net.OpError{Op: "dial", Err: errors.New("refused")}), messenger.ErrConnectionFailure)
	assert.ErrorIs(t, mapError(tgerr.New(500, "INTERNAL")), messenger.ErrGeneric)

	typed := messenger.ErrAuthFailure.WithMessage("session is not authorized")
	assert.Equal(t, typed, mapError(typed))
}

func TestSessionStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSessionStorage(nil)

	_, err := s.LoadSession(ctx)
	require.Error(t, err)

	raw := []byte(`{"Version":1}`)
	require.NoError(t, s.StoreSession(ctx, raw))
	raw[0] = 'x'
	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), got[0])
	assert.Equal(t, got, s.Bytes())
}
