package controllers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botPersistence "github.com/iota-uz/bothub/modules/bot/infrastructure/persistence"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	convPersistence "github.com/iota-uz/bothub/modules/conversation/infrastructure/persistence"
	convServices "github.com/iota-uz/bothub/modules/conversation/services"
	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	corePersistence "github.com/iota-uz/bothub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/playground/domain/session"
	"github.com/iota-uz/bothub/modules/playground/presentation/controllers"
	"github.com/iota-uz/bothub/modules/playground/services"
	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/memstore"
	"github.com/iota-uz/bothub/pkg/middleware"
)

const userHeader = "X-User-ID"

type fixture struct {
	ctx      context.Context
	mediator *mediator.Mediator
	users    *corePersistence.InmemUserRepository
	server   *httptest.Server
}

func setup(t *testing.T, framesPerMinute int64) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstore.New()
	bots := botPersistence.NewInmemUnitOfWorkFactory(store)
	f := &fixture{
		ctx:      context.Background(),
		mediator: mediator.New(logger),
		users:    corePersistence.NewInmemUserRepository(store),
	}
	lookup := botServices.NewBotLookup(bots, cache.NewMemoryStore(), time.Minute)
	access, err := botServices.Register(botServices.Config{
		UnitOfWork: bots,
		Users:      f.users,
		Mediator:   f.mediator,
		Lookup:     lookup,
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, convServices.Register(convServices.Config{
		UnitOfWork: convPersistence.NewInmemUnitOfWorkFactory(store),
		Bots:       bots,
		Lookup:     lookup,
		Access:     access,
		Registry: generation.NewRegistry(map[string]generation.Adapter{
			bot.DefaultGenerationModel: generation.NewStub(),
		}),
		Mediator: f.mediator,
		Logger:   logger,
	}))
	f.mediator.Freeze()

	svc := services.NewPlaygroundService(f.mediator, access, services.NewFrameLimiter(framesPerMinute))
	r := mux.NewRouter()
	r.Use(middleware.WithUser(userHeader))
	controllers.NewPlaygroundController(controllers.PlaygroundControllerConfig{
		BasePath:       "/playground",
		Service:        svc,
		MaxMessageSize: 4096,
	}).Register(r)
	f.server = httptest.NewServer(r)

	t.Cleanup(f.mediator.Wait)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) user(t *testing.T, email string) user.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, user.New(email))
	require.NoError(t, err)
	return u
}

func (f *fixture) bot(t *testing.T, owner uuid.UUID) bot.Bot {
	t.Helper()
	b, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, botServices.CreateBot{
		UserUID:    owner,
		BotType:    bot.TypeConsultant,
		Name:       "helper",
		TokenLimit: 100,
		Platforms:  []bot.Platform{bot.PlatformPlayground},
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) dial(t *testing.T, userUID, botUID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/playground/bots/" + botUID.String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{userHeader: {userUID.String()}})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, text string) controllers.Frame {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
	return readFrame(t, conn)
}

func readFrame(t *testing.T, conn *websocket.Conn) controllers.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame controllers.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected a close frame, got %v", err)
		return ce.Code
	}
}

func TestPlayground_Reply(t *testing.T) {
	t.Parallel()
	f := setup(t, 0)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID())

	conn := f.dial(t, owner.UID(), b.UID())
	first := roundTrip(t, conn, "hello")
	assert.Equal(t, controllers.FrameReply, first.Type)
	assert.Equal(t, generation.StubPrefix+"hello", first.Content)
	assert.True(t, first.AIResponseGenerated)
	assert.NotEmpty(t, first.ConversationUID)

	second := roundTrip(t, conn, "can you help?")
	assert.Equal(t, convServices.HandoffReply, second.Content)
	assert.False(t, second.AIResponseGenerated)
	assert.Equal(t, first.ConversationUID, second.ConversationUID)

	require.NoError(t, conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))
	assert.Equal(t, session.CloseNormal, closeCode(t, conn))
}

func TestPlayground_RejectsNonEditors(t *testing.T) {
	t.Parallel()
	f := setup(t, 0)
	owner := f.user(t, "owner@example.com")
	viewer := f.user(t, "viewer@example.com")
	stranger := f.user(t, "stranger@example.com")
	b := f.bot(t, owner.UID())

	_, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, botServices.LinkParticipant{
		UserUID: owner.UID(),
		BotUID:  b.UID(),
		Email:   viewer.Email(),
		Role:    bot.RoleViewer,
	})
	require.NoError(t, err)

	for _, u := range []user.User{viewer, stranger} {
		conn := f.dial(t, u.UID(), b.UID())
		assert.Equal(t, session.ClosePolicyViolation, closeCode(t, conn), u.Email())
	}
}

func TestPlayground_RateLimitKeepsSocketOpen(t *testing.T) {
	t.Parallel()
	f := setup(t, 1)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID())

	conn := f.dial(t, owner.UID(), b.UID())
	assert.Equal(t, controllers.FrameReply, roundTrip(t, conn, "one").Type)

	limited := roundTrip(t, conn, "two")
	assert.Equal(t, controllers.FrameError, limited.Type)
	assert.Equal(t, session.ErrRateLimited.Code, limited.Code)

	again := roundTrip(t, conn, "three")
	assert.Equal(t, controllers.FrameError, again.Type)
}

func TestPlayground_InvalidFrame(t *testing.T) {
	t.Parallel()
	f := setup(t, 0)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID())

	conn := f.dial(t, owner.UID(), b.UID())
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x1}))
	frame := readFrame(t, conn)
	assert.Equal(t, controllers.FrameError, frame.Type)
	assert.Equal(t, "INVALID_FRAME", frame.Code)

	assert.Equal(t, controllers.FrameReply, roundTrip(t, conn, "still here").Type)
}

func TestPlayground_RequiresUser(t *testing.T) {
	t.Parallel()
	f := setup(t, 0)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/playground/bots/" + uuid.NewString() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
