package services_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
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
	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/telegram/services"
	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/memstore"
	"github.com/iota-uz/bothub/pkg/serrors"
)

const validCode = "12345"

// fakeClient accepts validCode for every phone and relays inbox messages to
// whichever listener is running.
type fakeClient struct {
	mu       sync.Mutex
	requests int
	inbox    chan messenger.Incoming
	replies  chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		inbox:   make(chan messenger.Incoming),
		replies: make(chan string, 8),
	}
}

func (c *fakeClient) RequestLoginCode(_ context.Context, phone string) (messenger.LoginCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	return messenger.LoginCode{
		PhoneCodeHash: "hash-" + phone + "-" + string(rune('a'+c.requests)),
		Session:       []byte("provisional " + phone),
	}, nil
}

func (c *fakeClient) SubmitLoginCode(_ context.Context, phone, code, hash string, _ []byte) (messenger.Authorization, error) {
	if code != validCode || hash == "" {
		return messenger.Authorization{}, messenger.ErrAuthFailure.WithMessage("code rejected")
	}
	return messenger.Authorization{
		Session: []byte("session " + phone),
		Account: messenger.Account{UserID: 777, Username: "shopkeeper", Phone: phone},
	}, nil
}

func (c *fakeClient) Listen(ctx context.Context, _ []byte, handler messenger.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-c.inbox:
			reply, err := handler(ctx, in)
			if err != nil {
				reply = "error: " + err.Error()
			}
			c.replies <- reply
		}
	}
}

func (c *fakeClient) GetMe(context.Context, []byte) (messenger.Account, error) {
	return messenger.Account{UserID: 777}, nil
}

func (c *fakeClient) IsAuthorized(context.Context, []byte) (bool, error) {
	return true, nil
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	mediator *mediator.Mediator
	users    *corePersistence.InmemUserRepository
	client   *fakeClient
	manager  *services.SessionManager
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		ctx:    context.Background(),
		store:  memstore.New(),
		client: newFakeClient(),
	}
	bots := botPersistence.NewInmemUnitOfWorkFactory(f.store)
	f.users = corePersistence.NewInmemUserRepository(f.store)
	f.mediator = mediator.New(logger)

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
		UnitOfWork: convPersistence.NewInmemUnitOfWorkFactory(f.store),
		Bots:       bots,
		Lookup:     lookup,
		Access:     access,
		Registry: generation.NewRegistry(map[string]generation.Adapter{
			bot.DefaultGenerationModel: generation.NewStub(),
		}),
		Mediator: f.mediator,
		Logger:   logger,
	}))
	f.manager, err = services.Register(services.Config{
		UnitOfWork: persistence.NewInmemUnitOfWorkFactory(f.store),
		Bots:       bots,
		Access:     access,
		Client:     f.client,
		Mediator:   f.mediator,
		Logger:     logger,
	})
	require.NoError(t, err)
	f.mediator.Freeze()

	// Cleanups run last-in first-out: listeners stop before events drain.
	t.Cleanup(f.mediator.Wait)
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) user(t *testing.T, email string) user.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, user.New(email))
	require.NoError(t, err)
	return u
}

func (f *fixture) bot(t *testing.T, owner uuid.UUID, platforms ...bot.Platform) bot.Bot {
	t.Helper()
	b, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, botServices.CreateBot{
		UserUID:    owner,
		BotType:    bot.TypeConsultant,
		Name:       "shop",
		TokenLimit: 100,
		Platforms:  platforms,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) telegramService(t *testing.T, owner, botUID uuid.UUID) bot.Service {
	t.Helper()
	list, err := mediator.Query[[]bot.Service](f.ctx, f.mediator, botServices.ListServices{UserUID: owner, BotUID: botUID})
	require.NoError(t, err)
	for _, s := range list {
		if s.Platform() == bot.PlatformTelegram {
			return s
		}
	}
	t.Fatalf("bot %s has no telegram service", botUID)
	return nil
}

func (f *fixture) link(t *testing.T, uid uuid.UUID) accountlink.Link {
	t.Helper()
	var out accountlink.Link
	err := persistence.NewInmemUnitOfWorkFactory(f.store).Do(f.ctx, func(ctx context.Context, uow accountlink.UnitOfWork) error {
		l, err := uow.Links().FindByUID(ctx, uid)
		out = l
		return err
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) requestCode(t *testing.T, owner, botUID uuid.UUID, phone string) services.CodeRequested {
	t.Helper()
	res, err := mediator.Execute[services.CodeRequested](f.ctx, f.mediator, services.RequestCode{
		UserUID: owner,
		BotUID:  botUID,
		Phone:   phone,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) submitCode(owner, botUID uuid.UUID, phone, code string) (accountlink.Link, error) {
	return mediator.Execute[accountlink.Link](f.ctx, f.mediator, services.SubmitCode{
		UserUID: owner,
		BotUID:  botUID,
		Phone:   phone,
		Code:    code,
	})
}

func (f *fixture) linked(t *testing.T, owner, botUID uuid.UUID, phone string) accountlink.Link {
	t.Helper()
	f.requestCode(t, owner, botUID, phone)
	l, err := f.submitCode(owner, botUID, phone, validCode)
	require.NoError(t, err)
	return l
}

func TestSubmitCode_RejectsOtherBot(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b1 := f.bot(t, owner.UID(), bot.PlatformTelegram)
	b2 := f.bot(t, owner.UID(), bot.PlatformTelegram)

	req := f.requestCode(t, owner.UID(), b1.UID(), "+100")
	assert.NotEmpty(t, req.PhoneCodeHash)

	l := f.link(t, req.LinkUID)
	assert.True(t, l.IsProvisional())
	assert.Equal(t, b1.UID(), l.BotUID())

	_, err := f.submitCode(owner.UID(), b2.UID(), "+100", validCode)
	require.ErrorIs(t, err, accountlink.ErrAuth)
	assert.Contains(t, err.Error(), req.LinkUID.String())

	l = f.link(t, req.LinkUID)
	assert.True(t, l.IsProvisional())
	assert.Equal(t, bot.ServiceReserved, f.telegramService(t, owner.UID(), b2.UID()).Status())
}

func TestSubmitCode_ActivatesServiceAndListener(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b.UID(), " +1 (555) 010-99")
	assert.True(t, l.IsActive())
	assert.Equal(t, "+155501099", l.PhoneNumber())
	assert.Equal(t, int64(777), l.TelegramUserID())
	assert.Equal(t, []byte("session +155501099"), l.Session())

	svc := f.telegramService(t, owner.UID(), b.UID())
	assert.Equal(t, bot.ServiceActive, svc.Status())
	assert.Equal(t, l.UID(), svc.LinkedAccountUID())
	assert.Equal(t, "shopkeeper", svc.Details()["username"])
	assert.True(t, f.manager.Listeners().Running(svc.UID()))
}

func TestSubmitCode_Failures(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	withTelegram := f.bot(t, owner.UID(), bot.PlatformTelegram)
	withoutTelegram := f.bot(t, owner.UID(), bot.PlatformPlayground)

	_, err := f.submitCode(owner.UID(), withTelegram.UID(), "+200", validCode)
	require.ErrorIs(t, err, accountlink.ErrLinkNotFound)

	f.requestCode(t, owner.UID(), withTelegram.UID(), "+200")
	_, err = f.submitCode(owner.UID(), withTelegram.UID(), "+200", "00000")
	require.ErrorIs(t, err, messenger.ErrAuthFailure)
	assert.Equal(t, serrors.KindExternal, serrors.KindOf(err))

	f.requestCode(t, owner.UID(), withoutTelegram.UID(), "+300")
	_, err = f.submitCode(owner.UID(), withoutTelegram.UID(), "+300", validCode)
	require.ErrorIs(t, err, bot.ErrReservedServiceNotFound)

	_, err = f.submitCode(owner.UID(), withTelegram.UID(), "+200", "")
	require.ErrorIs(t, err, accountlink.ErrInvalidRequest)
}

func TestRequestCode_Access(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	stranger := f.user(t, "stranger@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	_, err := mediator.Execute[services.CodeRequested](f.ctx, f.mediator, services.RequestCode{
		UserUID: stranger.UID(),
		BotUID:  b.UID(),
		Phone:   "+100",
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	_, err = mediator.Execute[services.CodeRequested](f.ctx, f.mediator, services.RequestCode{
		UserUID: owner.UID(),
		BotUID:  b.UID(),
		Phone:   "not a phone",
	})
	require.ErrorIs(t, err, accountlink.ErrInvalidPhone)
	assert.Equal(t, 0, f.client.requests)
}

func TestLinking_OwnerOnly(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	admin := f.user(t, "admin@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)
	other := f.bot(t, owner.UID(), bot.PlatformTelegram)
	for _, target := range []uuid.UUID{b.UID(), other.UID()} {
		_, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, botServices.LinkParticipant{
			UserUID: owner.UID(), BotUID: target, Email: admin.Email(), Role: bot.RoleAdmin,
		})
		require.NoError(t, err)
	}

	_, err := mediator.Execute[services.CodeRequested](f.ctx, f.mediator, services.RequestCode{
		UserUID: admin.UID(),
		BotUID:  b.UID(),
		Phone:   "+100",
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)
	assert.Equal(t, 0, f.client.requests)

	f.requestCode(t, owner.UID(), b.UID(), "+100")
	_, err = f.submitCode(admin.UID(), b.UID(), "+100", validCode)
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	l, err := f.submitCode(owner.UID(), b.UID(), "+100", validCode)
	require.NoError(t, err)

	_, err = mediator.Execute[accountlink.Link](f.ctx, f.mediator, services.ReassignLink{
		UserUID:   admin.UID(),
		LinkUID:   l.UID(),
		NewBotUID: other.UID(),
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)
	assert.Equal(t, b.UID(), f.link(t, l.UID()).BotUID())

	// Unlinking stays open to admins.
	svc := f.telegramService(t, owner.UID(), b.UID())
	released, err := mediator.Execute[bot.Service](f.ctx, f.mediator, botServices.UnlinkService{
		UserUID:    admin.UID(),
		BotUID:     b.UID(),
		ServiceUID: svc.UID(),
	})
	require.NoError(t, err)
	assert.Equal(t, bot.ServiceReserved, released.Status())
}

func TestRequestCode_RelinkReleasesActiveService(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b1 := f.bot(t, owner.UID(), bot.PlatformTelegram)
	b2 := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b1.UID(), "+100")
	svc := f.telegramService(t, owner.UID(), b1.UID())
	require.True(t, f.manager.Listeners().Running(svc.UID()))

	req := f.requestCode(t, owner.UID(), b2.UID(), "+100")
	assert.Equal(t, l.UID(), req.LinkUID)
	assert.False(t, f.manager.Listeners().Running(svc.UID()))
	assert.Equal(t, bot.ServiceReserved, f.telegramService(t, owner.UID(), b1.UID()).Status())

	relinked := f.link(t, l.UID())
	assert.True(t, relinked.IsProvisional())
	assert.Equal(t, b2.UID(), relinked.BotUID())

	l, err := f.submitCode(owner.UID(), b2.UID(), "+100", validCode)
	require.NoError(t, err)
	assert.True(t, l.IsActive())
	assert.True(t, f.manager.Listeners().Running(f.telegramService(t, owner.UID(), b2.UID()).UID()))
}

func TestReassign_MovesListener(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b1 := f.bot(t, owner.UID(), bot.PlatformTelegram)
	b2 := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b1.UID(), "+100")
	from := f.telegramService(t, owner.UID(), b1.UID())

	moved, err := mediator.Execute[accountlink.Link](f.ctx, f.mediator, services.ReassignLink{
		UserUID:   owner.UID(),
		LinkUID:   l.UID(),
		NewBotUID: b2.UID(),
	})
	require.NoError(t, err)
	assert.Equal(t, b2.UID(), moved.BotUID())
	assert.True(t, moved.IsActive())

	to := f.telegramService(t, owner.UID(), b2.UID())
	assert.Equal(t, bot.ServiceActive, to.Status())
	assert.Equal(t, l.UID(), to.LinkedAccountUID())
	assert.Equal(t, bot.ServiceReserved, f.telegramService(t, owner.UID(), b1.UID()).Status())
	assert.False(t, f.manager.Listeners().Running(from.UID()))
	assert.True(t, f.manager.Listeners().Running(to.UID()))
}

func TestReassign_RequiresAccessToBothBots(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	other := f.user(t, "other@example.com")
	b1 := f.bot(t, owner.UID(), bot.PlatformTelegram)
	foreign := f.bot(t, other.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b1.UID(), "+100")
	_, err := mediator.Execute[accountlink.Link](f.ctx, f.mediator, services.ReassignLink{
		UserUID:   owner.UID(),
		LinkUID:   l.UID(),
		NewBotUID: foreign.UID(),
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)
	assert.Equal(t, b1.UID(), f.link(t, l.UID()).BotUID())
	assert.Equal(t, 1, f.manager.Listeners().Len())
}

func TestDeactivateLink(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b.UID(), "+100")
	svc := f.telegramService(t, owner.UID(), b.UID())

	off, err := mediator.Execute[accountlink.Link](f.ctx, f.mediator, services.DeactivateLink{
		UserUID: owner.UID(),
		LinkUID: l.UID(),
	})
	require.NoError(t, err)
	assert.False(t, off.IsActive())
	assert.Nil(t, f.link(t, l.UID()).Session())
	assert.False(t, f.manager.Listeners().Running(svc.UID()))
	assert.Equal(t, bot.ServiceReserved, f.telegramService(t, owner.UID(), b.UID()).Status())

	links, err := mediator.Query[[]accountlink.Link](f.ctx, f.mediator, services.ListLinks{
		UserUID: owner.UID(),
		BotUID:  b.UID(),
	})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.False(t, links[0].IsActive())
}

func TestUnlinkService_StopsListener(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b.UID(), "+100")
	svc := f.telegramService(t, owner.UID(), b.UID())

	_, err := mediator.Execute[bot.Service](f.ctx, f.mediator, botServices.UnlinkService{
		UserUID:    owner.UID(),
		BotUID:     b.UID(),
		ServiceUID: svc.UID(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !f.manager.Listeners().Running(svc.UID())
	}, time.Second, 10*time.Millisecond)
	f.mediator.Wait()
	assert.False(t, f.link(t, l.UID()).IsActive())
}

func TestUnlinkService_DeactivatesLinkWithoutListener(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b.UID(), "+100")
	svc := f.telegramService(t, owner.UID(), b.UID())

	// The listener died earlier; the link is still active.
	_, ok := f.manager.Listeners().Stop(svc.UID())
	require.True(t, ok)
	require.True(t, f.link(t, l.UID()).IsActive())

	_, err := mediator.Execute[bot.Service](f.ctx, f.mediator, botServices.UnlinkService{
		UserUID:    owner.UID(),
		BotUID:     b.UID(),
		ServiceUID: svc.UID(),
	})
	require.NoError(t, err)
	f.mediator.Wait()

	assert.False(t, f.link(t, l.UID()).IsActive())
	assert.Equal(t, bot.ServiceReserved, f.telegramService(t, owner.UID(), b.UID()).Status())
}

func TestDeleteBot_DeactivatesLinks(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)

	l := f.linked(t, owner.UID(), b.UID(), "+100")
	require.Equal(t, 1, f.manager.Listeners().Len())

	_, err := mediator.Execute[uuid.UUID](f.ctx, f.mediator, botServices.DeleteBot{
		UserUID: owner.UID(),
		BotUID:  b.UID(),
	})
	require.NoError(t, err)
	f.mediator.Wait()

	assert.Equal(t, 0, f.manager.Listeners().Len())
	assert.False(t, f.link(t, l.UID()).IsActive())
}

func TestResumeListeners(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)
	idle := f.bot(t, owner.UID(), bot.PlatformTelegram)

	f.linked(t, owner.UID(), b.UID(), "+100")
	f.requestCode(t, owner.UID(), idle.UID(), "+200")
	svc := f.telegramService(t, owner.UID(), b.UID())
	_, ok := f.manager.Listeners().Stop(svc.UID())
	require.True(t, ok)

	n, err := f.manager.ResumeListeners(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.manager.Listeners().Running(svc.UID()))

	n, err = f.manager.ResumeListeners(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.manager.Listeners().Len())
}

func TestListener_RepliesThroughEngine(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.bot(t, owner.UID(), bot.PlatformTelegram)
	f.linked(t, owner.UID(), b.UID(), "+100")

	send := func(content string) string {
		select {
		case f.client.inbox <- messenger.Incoming{SenderID: "42", SenderNickname: "ann", Content: content}:
		case <-time.After(time.Second):
			t.Fatal("listener did not take the message")
		}
		select {
		case reply := <-f.client.replies:
			return reply
		case <-time.After(time.Second):
			t.Fatal("listener did not reply")
		}
		return ""
	}

	assert.Equal(t, generation.StubPrefix+"hello", send("hello"))
	assert.Equal(t, convServices.HandoffReply, send("I need help"))
	assert.Equal(t, 1, f.store.Len("conversations"))
}
