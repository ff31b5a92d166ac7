package services_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	corePersistence "github.com/iota-uz/bothub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/memstore"
	"github.com/iota-uz/bothub/pkg/serrors"
)

type fixture struct {
	ctx      context.Context
	mediator *mediator.Mediator
	uow      bot.UnitOfWorkFactory
	users    *corePersistence.InmemUserRepository
	access   *services.AccessService
	lookup   *services.BotLookup
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memstore.New()
	uow := persistence.NewInmemUnitOfWorkFactory(store)
	users := corePersistence.NewInmemUserRepository(store)
	m := mediator.New(logger)
	lookup := services.NewBotLookup(uow, cache.NewMemoryStore(), time.Minute)

	access, err := services.Register(services.Config{
		UnitOfWork: uow,
		Users:      users,
		Mediator:   m,
		Lookup:     lookup,
		Logger:     logger,
		Tag:        func() string { return "a1b2c3" },
	})
	require.NoError(t, err)
	m.Freeze()
	t.Cleanup(m.Wait)

	return &fixture{ctx: context.Background(), mediator: m, uow: uow, users: users, access: access, lookup: lookup}
}

func (f *fixture) user(t *testing.T, email string) user.User {
	t.Helper()
	u, err := f.users.Create(f.ctx, user.New(email))
	require.NoError(t, err)
	return u
}

func (f *fixture) createBot(t *testing.T, owner uuid.UUID, platforms ...bot.Platform) bot.Bot {
	t.Helper()
	b, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.CreateBot{
		UserUID:    owner,
		BotType:    bot.TypeSeller,
		Name:       "shop",
		TokenLimit: 1000,
		Platforms:  platforms,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) participants(t *testing.T, botUID uuid.UUID) []bot.Participant {
	t.Helper()
	var out []bot.Participant
	require.NoError(t, f.uow.Do(f.ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		ps, err := uow.Participants().FindByBot(ctx, botUID)
		out = ps
		return err
	}))
	return out
}

func owners(ps []bot.Participant) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range ps {
		if p.Role() == bot.RoleOwner {
			out = append(out, p.UserUID())
		}
	}
	return out
}

func TestCreateAndDuplicate(t *testing.T) {
	t.Parallel()
	f := setup(t)
	u1 := f.user(t, "u1@example.com")

	b1 := f.createBot(t, u1.UID(), bot.PlatformTelegram, bot.PlatformPlayground, bot.PlatformTelegram)
	assert.Equal(t, bot.StatusDraft, b1.Status())
	assert.Equal(t, []uuid.UUID{u1.UID()}, owners(f.participants(t, b1.UID())))

	settings, err := bot.NewAISettings("be brief", 0.2, 0.5, 10, 64, 1.0, "stub")
	require.NoError(t, err)
	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.UpdateAISettings{
		UserUID:           u1.UID(),
		BotUID:            b1.UID(),
		Instructions:      settings.Instructions(),
		Temperature:       settings.Temperature(),
		TopP:              settings.TopP(),
		TopK:              settings.TopK(),
		MaxResponse:       settings.MaxResponse(),
		RepetitionPenalty: settings.RepetitionPenalty(),
		GenerationModel:   settings.GenerationModel(),
	})
	require.NoError(t, err)

	b2, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.DuplicateBot{UserUID: u1.UID(), BotUID: b1.UID()})
	require.NoError(t, err)
	assert.NotEqual(t, b1.UID(), b2.UID())
	assert.Equal(t, bot.StatusDraft, b2.Status())
	assert.True(t, strings.HasSuffix(b2.Name(), "_copy_a1b2c3"), b2.Name())
	assert.Equal(t, settings, b2.AISettings())
	assert.Equal(t, 1000, b2.Quota().TokensLeft())
	assert.Equal(t, []uuid.UUID{u1.UID()}, owners(f.participants(t, b2.UID())))

	services1, err := mediator.Query[[]bot.Service](f.ctx, f.mediator, services.ListServices{UserUID: u1.UID(), BotUID: b1.UID()})
	require.NoError(t, err)
	require.Len(t, services1, 2)
	services2, err := mediator.Query[[]bot.Service](f.ctx, f.mediator, services.ListServices{UserUID: u1.UID(), BotUID: b2.UID()})
	require.NoError(t, err)
	require.Len(t, services2, 2)
	for _, s := range services2 {
		assert.Equal(t, bot.ServiceReserved, s.Status())
		assert.Equal(t, uuid.Nil, s.LinkedAccountUID())
	}

	bots, err := mediator.Query[[]bot.Bot](f.ctx, f.mediator, services.ListBots{UserUID: u1.UID()})
	require.NoError(t, err)
	assert.Len(t, bots, 2)
}

func TestAccessRules(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	viewer := f.user(t, "viewer@example.com")
	stranger := f.user(t, "stranger@example.com")
	b := f.createBot(t, owner.UID())

	_, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), Email: "viewer@example.com", Role: bot.RoleViewer,
	})
	require.NoError(t, err)

	_, err = mediator.Query[bot.Bot](f.ctx, f.mediator, services.GetBot{UserUID: viewer.UID(), BotUID: b.UID()})
	require.NoError(t, err, "reads admit viewers")

	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.ActivateBot{UserUID: viewer.UID(), BotUID: b.UID()})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	_, err = mediator.Query[bot.Bot](f.ctx, f.mediator, services.GetBot{UserUID: stranger.UID(), BotUID: b.UID()})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	_, err = mediator.Query[bot.Bot](f.ctx, f.mediator, services.GetBot{UserUID: owner.UID(), BotUID: uuid.New()})
	require.ErrorIs(t, err, bot.ErrBotNotFound)

	shared, err := f.access.CheckAccess(f.ctx, viewer.UID(), b.UID(), bot.RolesAny)
	require.NoError(t, err)
	assert.Equal(t, b.UID(), shared.UID())

	bots, err := mediator.Query[[]bot.Bot](f.ctx, f.mediator, services.ListBots{UserUID: viewer.UID(), Roles: bot.RolesOwnerAdmin})
	require.NoError(t, err)
	assert.Empty(t, bots)
	bots, err = mediator.Query[[]bot.Bot](f.ctx, f.mediator, services.ListBots{UserUID: viewer.UID()})
	require.NoError(t, err)
	assert.Len(t, bots, 1)
}

func TestActivateSuspendIdempotent(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.createBot(t, owner.UID())

	for range 2 {
		got, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.ActivateBot{UserUID: owner.UID(), BotUID: b.UID()})
		require.NoError(t, err)
		assert.Equal(t, bot.StatusActive, got.Status())
	}
	got, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.SuspendBot{UserUID: owner.UID(), BotUID: b.UID()})
	require.NoError(t, err)
	assert.Equal(t, bot.StatusSuspended, got.Status())

	cached, err := f.lookup.Get(f.ctx, b.UID())
	require.NoError(t, err)
	assert.Equal(t, bot.StatusSuspended, cached.Status())
}

func TestTransferOwnershipRewritesOwnerRow(t *testing.T) {
	t.Parallel()
	f := setup(t)
	prev := f.user(t, "prev@example.com")
	next := f.user(t, "next@example.com")
	b := f.createBot(t, prev.UID())

	_, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: prev.UID(), BotUID: b.UID(), Email: "next@example.com", Role: bot.RoleEditor,
	})
	require.NoError(t, err)

	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.TransferOwnership{
		UserUID: prev.UID(), BotUID: b.UID(), NewOwnerUID: prev.UID(),
	})
	require.ErrorIs(t, err, bot.ErrCannotTransferToSelf)

	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.TransferOwnership{
		UserUID: next.UID(), BotUID: b.UID(), NewOwnerUID: next.UID(),
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied, "editors cannot transfer")

	got, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.TransferOwnership{
		UserUID: prev.UID(), BotUID: b.UID(), NewOwnerUID: next.UID(), KeepPreviousOwner: true,
	})
	require.NoError(t, err)
	assert.Equal(t, next.UID(), got.OwnerUID())

	ps := f.participants(t, b.UID())
	assert.Equal(t, []uuid.UUID{next.UID()}, owners(ps))
	require.Len(t, ps, 2)
	for _, p := range ps {
		if p.UserUID() == prev.UID() {
			assert.Equal(t, bot.RoleAdmin, p.Role())
		}
	}
}

func TestOwnerParticipantIsImmutable(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	f.user(t, "editor@example.com")
	b := f.createBot(t, owner.UID())

	editor, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), Email: "editor@example.com", Role: bot.RoleEditor,
	})
	require.NoError(t, err)

	_, err = mediator.Execute[bot.Participant](f.ctx, f.mediator, services.UpdateParticipantRole{
		UserUID: editor.UserUID(), BotUID: b.UID(), ParticipantUserUID: owner.UID(), Role: bot.RoleViewer,
	})
	require.ErrorIs(t, err, bot.ErrOwnerImmutable)

	_, err = mediator.Execute[uuid.UUID](f.ctx, f.mediator, services.UnlinkParticipant{
		UserUID: editor.UserUID(), BotUID: b.UID(), ParticipantUserUID: owner.UID(),
	})
	require.ErrorIs(t, err, bot.ErrOwnerImmutable)

	_, err = mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), Email: "editor@example.com", Role: bot.RoleViewer,
	})
	require.ErrorIs(t, err, bot.ErrParticipantAlreadyExists)

	changed, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.UpdateParticipantRole{
		UserUID: owner.UID(), BotUID: b.UID(), ParticipantUserUID: editor.UserUID(), Role: bot.RoleViewer,
	})
	require.NoError(t, err)
	assert.Equal(t, bot.RoleViewer, changed.Role())

	_, err = mediator.Execute[uuid.UUID](f.ctx, f.mediator, services.UnlinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), ParticipantUserUID: editor.UserUID(),
	})
	require.NoError(t, err)
	assert.Len(t, f.participants(t, b.UID()), 1)
}

func TestServiceAndDocumentCommands(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	b := f.createBot(t, owner.UID())

	s, err := mediator.Execute[bot.Service](f.ctx, f.mediator, services.ReserveService{
		UserUID: owner.UID(), BotUID: b.UID(), Platform: bot.PlatformWhatsApp,
	})
	require.NoError(t, err)
	assert.Equal(t, bot.ServiceReserved, s.Status())

	released, err := mediator.Execute[bot.Service](f.ctx, f.mediator, services.UnlinkService{
		UserUID: owner.UID(), BotUID: b.UID(), ServiceUID: s.UID(),
	})
	require.NoError(t, err)
	assert.Equal(t, bot.ServiceReserved, released.Status())

	_, err = mediator.Execute[bot.Service](f.ctx, f.mediator, services.UnlinkService{
		UserUID: owner.UID(), BotUID: uuid.New(), ServiceUID: s.UID(),
	})
	require.ErrorIs(t, err, bot.ErrBotNotFound)

	d, err := mediator.Execute[bot.Document](f.ctx, f.mediator, services.UploadDocument{
		UserUID: owner.UID(), BotUID: b.UID(), Filename: "catalog.pdf", Content: []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", d.ContentType())

	_, err = mediator.Execute[bot.Document](f.ctx, f.mediator, services.UploadDocument{
		UserUID: owner.UID(), BotUID: b.UID(), Filename: "run.exe", ContentType: "application/x-msdownload", Content: []byte("MZ"),
	})
	require.ErrorIs(t, err, bot.ErrInvalidFileType)

	docs, err := mediator.Query[[]bot.Document](f.ctx, f.mediator, services.ListDocuments{UserUID: owner.UID(), BotUID: b.UID()})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	_, err = mediator.Execute[uuid.UUID](f.ctx, f.mediator, services.DeleteDocument{
		UserUID: owner.UID(), BotUID: b.UID(), DocumentUID: d.UID(),
	})
	require.NoError(t, err)
	docs, err = mediator.Query[[]bot.Document](f.ctx, f.mediator, services.ListDocuments{UserUID: owner.UID(), BotUID: b.UID()})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReserveService_OwnerOnly(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	f.user(t, "admin@example.com")
	b := f.createBot(t, owner.UID())

	admin, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), Email: "admin@example.com", Role: bot.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = mediator.Execute[bot.Service](f.ctx, f.mediator, services.ReserveService{
		UserUID: admin.UserUID(), BotUID: b.UID(), Platform: bot.PlatformWhatsApp,
	})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	s, err := mediator.Execute[bot.Service](f.ctx, f.mediator, services.ReserveService{
		UserUID: owner.UID(), BotUID: b.UID(), Platform: bot.PlatformWhatsApp,
	})
	require.NoError(t, err)

	_, err = mediator.Execute[bot.Service](f.ctx, f.mediator, services.UnlinkService{
		UserUID: admin.UserUID(), BotUID: b.UID(), ServiceUID: s.UID(),
	})
	require.NoError(t, err)
}

func TestDeleteBot(t *testing.T) {
	t.Parallel()
	f := setup(t)
	owner := f.user(t, "owner@example.com")
	f.user(t, "admin@example.com")
	b := f.createBot(t, owner.UID(), bot.PlatformTelegram)

	admin, err := mediator.Execute[bot.Participant](f.ctx, f.mediator, services.LinkParticipant{
		UserUID: owner.UID(), BotUID: b.UID(), Email: "admin@example.com", Role: bot.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = mediator.Execute[uuid.UUID](f.ctx, f.mediator, services.DeleteBot{UserUID: admin.UserUID(), BotUID: b.UID()})
	require.ErrorIs(t, err, serrors.ErrAccessDenied)

	_, err = mediator.Execute[uuid.UUID](f.ctx, f.mediator, services.DeleteBot{UserUID: owner.UID(), BotUID: b.UID()})
	require.NoError(t, err)

	_, err = f.lookup.Get(f.ctx, b.UID())
	require.ErrorIs(t, err, bot.ErrBotNotFound)
	assert.Empty(t, f.participants(t, b.UID()))
}

func TestCommandValidation(t *testing.T) {
	t.Parallel()
	f := setup(t)

	_, err := mediator.Execute[bot.Bot](f.ctx, f.mediator, services.CreateBot{UserUID: uuid.New(), BotType: "robot"})
	require.ErrorIs(t, err, bot.ErrInvalidBotDetails)

	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.CreateBot{BotType: bot.TypeManager})
	require.ErrorIs(t, err, bot.ErrInvalidBotDetails)

	owner := f.user(t, "owner@example.com")
	b := f.createBot(t, owner.UID())
	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.UpdateAISettings{
		UserUID: owner.UID(), BotUID: b.UID(), Temperature: 3, TopP: 0.5, TopK: 10, MaxResponse: 10, GenerationModel: "stub",
	})
	require.ErrorIs(t, err, bot.ErrInvalidAISettings)

	_, err = mediator.Execute[bot.Bot](f.ctx, f.mediator, services.UpdateTokenLimit{UserUID: owner.UID(), BotUID: b.UID(), TokenLimit: -1})
	require.ErrorIs(t, err, bot.ErrInvalidQuota)
}
