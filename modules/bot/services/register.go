package services

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type Config struct {
	UnitOfWork bot.UnitOfWorkFactory
	Users      user.Repository
	Mediator   *mediator.Mediator
	Lookup     *BotLookup
	Notifier   Notifier
	Logger     *logrus.Logger
	// Tag names duplicated bots; random when nil.
	Tag        func() string
}

var rolesOwner = []bot.Role{bot.RoleOwner}

// Register wires the bot commands, queries and event handlers into the
// mediator and returns the access service shared with other modules.
func Register(cfg Config) (*AccessService, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	if cfg.Tag == nil {
		cfg.Tag = randomTag
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	access := NewAccessService(cfg.UnitOfWork)
	m := cfg.Mediator
	with := func(roles []bot.Role) handler {
		return handler{uow: cfg.UnitOfWork, access: access, mediator: m, roles: roles}
	}

	regs := []error{
		command[CreateBot, bot.Bot](m, &CreateBotHandler{handler: with(nil)}),
		command[UpdateBot, bot.Bot](m, &mutateBotHandler[UpdateBot]{
			handler: with(bot.RolesOwnerAdminEditor),
			target:  func(c UpdateBot) (uuid.UUID, uuid.UUID) { return c.UserUID, c.BotUID },
			apply:   applyUpdateBot,
		}),
		command[UpdateAISettings, bot.Bot](m, &mutateBotHandler[UpdateAISettings]{
			handler: with(bot.RolesOwnerAdminEditor),
			target:  func(c UpdateAISettings) (uuid.UUID, uuid.UUID) { return c.UserUID, c.BotUID },
			apply:   applyUpdateAISettings,
		}),
		command[UpdateTokenLimit, bot.Bot](m, &mutateBotHandler[UpdateTokenLimit]{
			handler: with(bot.RolesOwnerAdminEditor),
			target:  func(c UpdateTokenLimit) (uuid.UUID, uuid.UUID) { return c.UserUID, c.BotUID },
			apply:   applyUpdateTokenLimit,
		}),
		command[ActivateBot, bot.Bot](m, &mutateBotHandler[ActivateBot]{
			handler: with(bot.RolesOwnerAdminEditor),
			target:  func(c ActivateBot) (uuid.UUID, uuid.UUID) { return c.UserUID, c.BotUID },
			apply:   func(_ ActivateBot, b bot.Bot) error { b.Activate(); return nil },
		}),
		command[SuspendBot, bot.Bot](m, &mutateBotHandler[SuspendBot]{
			handler: with(bot.RolesOwnerAdminEditor),
			target:  func(c SuspendBot) (uuid.UUID, uuid.UUID) { return c.UserUID, c.BotUID },
			apply:   func(_ SuspendBot, b bot.Bot) error { b.Suspend(); return nil },
		}),
		command[TransferOwnership, bot.Bot](m, &TransferOwnershipHandler{handler: with(rolesOwner), users: cfg.Users}),
		command[DuplicateBot, bot.Bot](m, &DuplicateBotHandler{handler: with(bot.RolesOwnerAdmin), tag: cfg.Tag}),
		command[DeleteBot, uuid.UUID](m, &DeleteBotHandler{handler: with(rolesOwner)}),
		command[ReserveService, bot.Service](m, &ReserveServiceHandler{handler: with(bot.RolesOwner)}),
		command[UnlinkService, bot.Service](m, &UnlinkServiceHandler{handler: with(bot.RolesOwnerAdmin)}),
		command[LinkParticipant, bot.Participant](m, &LinkParticipantHandler{handler: with(bot.RolesOwnerAdminEditor), users: cfg.Users}),
		command[UnlinkParticipant, uuid.UUID](m, &UnlinkParticipantHandler{handler: with(bot.RolesOwnerAdminEditor)}),
		command[UpdateParticipantRole, bot.Participant](m, &UpdateParticipantRoleHandler{handler: with(bot.RolesOwnerAdminEditor)}),
		command[UploadDocument, bot.Document](m, &UploadDocumentHandler{handler: with(bot.RolesOwnerAdminEditor)}),
		command[DeleteDocument, uuid.UUID](m, &DeleteDocumentHandler{handler: with(bot.RolesOwnerAdminEditor)}),

		query[ListBots, []bot.Bot](m, &ListBotsHandler{handler: with(bot.RolesAny)}),
		query[GetBot, bot.Bot](m, &GetBotHandler{handler: with(bot.RolesAny)}),
		query[ListParticipants, []bot.Participant](m, &listHandler[ListParticipants, bot.Participant]{
			handler: with(bot.RolesAny),
			target:  func(q ListParticipants) GetBot { return GetBot{UserUID: q.UserUID, BotUID: q.BotUID} },
			load:    loadParticipants,
		}),
		query[ListServices, []bot.Service](m, &listHandler[ListServices, bot.Service]{
			handler: with(bot.RolesAny),
			target:  func(q ListServices) GetBot { return GetBot{UserUID: q.UserUID, BotUID: q.BotUID} },
			load:    loadServices,
		}),
		query[ListDocuments, []bot.Document](m, &listHandler[ListDocuments, bot.Document]{
			handler: with(bot.RolesAny),
			target:  func(q ListDocuments) GetBot { return GetBot{UserUID: q.UserUID, BotUID: q.BotUID} },
			load:    loadDocuments,
		}),
	}
	for _, err := range regs {
		if err != nil {
			return nil, err
		}
	}
	if cfg.Lookup != nil {
		if err := registerEventHandlers(m, cfg.Lookup, cfg.Notifier, cfg.Logger.WithField("module", "bot")); err != nil {
			return nil, err
		}
	}
	return access, nil
}

// Handlers are stateless, so every dispatch reuses the same instance.
func command[C any, R any](m *mediator.Mediator, h mediator.CommandHandler[C, R]) error {
	return mediator.RegisterCommand(m, func() mediator.CommandHandler[C, R] { return h })
}

func query[Q any, R any](m *mediator.Mediator, h mediator.QueryHandler[Q, R]) error {
	return mediator.RegisterQuery(m, func() mediator.QueryHandler[Q, R] { return h })
}
