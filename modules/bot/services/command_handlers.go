package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/pkg/mediator"
)

// handler carries what every bot command needs. roles is the set of
// participant roles admitted by the command; the owner always passes.
type handler struct {
	uow      bot.UnitOfWorkFactory
	access   *AccessService
	mediator *mediator.Mediator
	roles    []bot.Role
}

// run executes fn in a unit of work and publishes the collected events once
// it has committed.
func (h handler) run(ctx context.Context, fn func(ctx context.Context, uow bot.UnitOfWork) ([]any, error)) error {
	var events []any
	err := h.uow.Do(ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		evs, err := fn(ctx, uow)
		events = evs
		return err
	})
	if err != nil {
		return err
	}
	if len(events) > 0 {
		h.mediator.Publish(ctx, events...)
	}
	return nil
}

type CreateBotHandler struct {
	handler
}

func (h *CreateBotHandler) Handle(ctx context.Context, cmd CreateBot) (bot.Bot, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	quota, err := bot.FullQuota(cmd.TokenLimit)
	if err != nil {
		return nil, err
	}
	b, err := bot.Create(cmd.UserUID, cmd.BotType,
		bot.WithName(strings.TrimSpace(cmd.Name)),
		bot.WithTariff(cmd.Tariff),
		bot.WithAutoDeduction(cmd.AutoDeduction),
		bot.WithCRMLeadID(cmd.CRMLeadID),
		bot.WithQuota(quota),
	)
	if err != nil {
		return nil, err
	}

	err = h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if err := uow.Bots().Create(ctx, b); err != nil {
			return nil, err
		}
		if err := uow.Participants().Create(ctx, bot.NewOwnerParticipant(b.UID(), cmd.UserUID)); err != nil {
			return nil, err
		}
		events := b.PullEvents()
		for _, platform := range uniquePlatforms(cmd.Platforms) {
			s, err := bot.ReserveService(b.UID(), platform)
			if err != nil {
				return nil, err
			}
			if err := uow.Services().Create(ctx, s); err != nil {
				return nil, err
			}
			events = append(events, s.PullEvents()...)
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func uniquePlatforms(platforms []bot.Platform) []bot.Platform {
	seen := make(map[bot.Platform]struct{}, len(platforms))
	out := make([]bot.Platform, 0, len(platforms))
	for _, p := range platforms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// mutateBotHandler covers the commands that load one bot, change it and
// store it back.
type mutateBotHandler[C any] struct {
	handler
	target func(C) (userUID, botUID uuid.UUID)
	apply  func(C, bot.Bot) error
}

func (h *mutateBotHandler[C]) Handle(ctx context.Context, cmd C) (bot.Bot, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	userUID, botUID := h.target(cmd)
	var out bot.Bot
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		b, err := h.access.CheckSingleBotAccess(ctx, uow, userUID, botUID, h.roles)
		if err != nil {
			return nil, err
		}
		if err := h.apply(cmd, b); err != nil {
			return nil, err
		}
		if err := uow.Bots().Update(ctx, b); err != nil {
			return nil, err
		}
		out = b
		return b.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyUpdateBot(cmd UpdateBot, b bot.Bot) error {
	return b.UpdateDetails(bot.Details{
		Name:          cmd.Name,
		Tariff:        cmd.Tariff,
		AutoDeduction: cmd.AutoDeduction,
		CRMLeadID:     cmd.CRMLeadID,
	})
}

func applyUpdateAISettings(cmd UpdateAISettings, b bot.Bot) error {
	s, err := bot.NewAISettings(
		cmd.Instructions,
		cmd.Temperature,
		cmd.TopP,
		cmd.TopK,
		cmd.MaxResponse,
		cmd.RepetitionPenalty,
		cmd.GenerationModel,
	)
	if err != nil {
		return err
	}
	b.UpdateAISettings(s)
	return nil
}

func applyUpdateTokenLimit(cmd UpdateTokenLimit, b bot.Bot) error {
	return b.UpdateTokenLimit(cmd.TokenLimit)
}

type TransferOwnershipHandler struct {
	handler
	users user.Repository
}

func (h *TransferOwnershipHandler) Handle(ctx context.Context, cmd TransferOwnership) (bot.Bot, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Bot
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		b, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles)
		if err != nil {
			return nil, err
		}
		if _, err := h.users.GetByUID(ctx, cmd.NewOwnerUID); err != nil {
			return nil, err
		}
		prev := b.OwnerUID()
		if err := b.TransferOwnership(cmd.NewOwnerUID); err != nil {
			return nil, err
		}

		// the owner row moves to the new owner; a role the new owner held before is dropped
		for _, uid := range []uuid.UUID{prev, cmd.NewOwnerUID} {
			p, err := uow.Participants().FindByBotAndUser(ctx, b.UID(), uid)
			if errors.Is(err, bot.ErrParticipantNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := uow.Participants().DeleteByUID(ctx, p.UID()); err != nil {
				return nil, err
			}
		}
		if err := uow.Participants().Create(ctx, bot.NewOwnerParticipant(b.UID(), cmd.NewOwnerUID)); err != nil {
			return nil, err
		}
		var events []any
		if cmd.KeepPreviousOwner {
			admin, err := bot.LinkParticipant(b.UID(), prev, bot.RoleAdmin)
			if err != nil {
				return nil, err
			}
			if err := uow.Participants().Create(ctx, admin); err != nil {
				return nil, err
			}
			events = admin.PullEvents()
		}
		if err := uow.Bots().Update(ctx, b); err != nil {
			return nil, err
		}
		out = b
		return append(b.PullEvents(), events...), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type DuplicateBotHandler struct {
	handler
	tag func() string
}

func randomTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func (h *DuplicateBotHandler) Handle(ctx context.Context, cmd DuplicateBot) (bot.Bot, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Bot
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		src, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles)
		if err != nil {
			return nil, err
		}
		dup := src.Duplicate(cmd.UserUID, h.tag())
		if err := uow.Bots().Create(ctx, dup); err != nil {
			return nil, err
		}
		if err := uow.Participants().Create(ctx, bot.NewOwnerParticipant(dup.UID(), cmd.UserUID)); err != nil {
			return nil, err
		}
		services, err := uow.Services().FindByBot(ctx, src.UID())
		if err != nil {
			return nil, err
		}
		for _, s := range services {
			if err := uow.Services().Create(ctx, bot.CloneReserved(s, dup.UID())); err != nil {
				return nil, err
			}
		}
		out = dup
		return dup.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type DeleteBotHandler struct {
	handler
}

func (h *DeleteBotHandler) Handle(ctx context.Context, cmd DeleteBot) (uuid.UUID, error) {
	if err := validate(cmd); err != nil {
		return uuid.Nil, err
	}
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		b, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles)
		if err != nil {
			return nil, err
		}
		services, err := uow.Services().FindByBot(ctx, b.UID())
		if err != nil {
			return nil, err
		}
		serviceUIDs := make([]uuid.UUID, 0, len(services))
		for _, s := range services {
			serviceUIDs = append(serviceUIDs, s.UID())
		}
		if err := uow.Documents().DeleteByBot(ctx, b.UID()); err != nil {
			return nil, err
		}
		if err := uow.Services().DeleteByBot(ctx, b.UID()); err != nil {
			return nil, err
		}
		if err := uow.Participants().DeleteByBot(ctx, b.UID()); err != nil {
			return nil, err
		}
		if err := uow.Bots().DeleteByUID(ctx, b.UID()); err != nil {
			return nil, err
		}
		return []any{bot.DeletedEvent{BotUID: b.UID(), ServiceUIDs: serviceUIDs}}, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return cmd.BotUID, nil
}

type ReserveServiceHandler struct {
	handler
}

func (h *ReserveServiceHandler) Handle(ctx context.Context, cmd ReserveService) (bot.Service, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Service
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		s, err := bot.ReserveService(cmd.BotUID, cmd.Platform)
		if err != nil {
			return nil, err
		}
		if err := uow.Services().Create(ctx, s); err != nil {
			return nil, err
		}
		out = s
		return s.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type UnlinkServiceHandler struct {
	handler
}

func (h *UnlinkServiceHandler) Handle(ctx context.Context, cmd UnlinkService) (bot.Service, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Service
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		s, err := serviceOfBot(ctx, uow, cmd.BotUID, cmd.ServiceUID)
		if err != nil {
			return nil, err
		}
		s.Release()
		if err := uow.Services().Update(ctx, s); err != nil {
			return nil, err
		}
		out = s
		return s.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func serviceOfBot(ctx context.Context, uow bot.UnitOfWork, botUID, serviceUID uuid.UUID) (bot.Service, error) {
	s, err := uow.Services().FindByUID(ctx, serviceUID)
	if err != nil {
		return nil, err
	}
	if s.BotUID() != botUID {
		return nil, bot.ErrServiceNotFound.WithMessage("service %s does not belong to bot %s", serviceUID, botUID)
	}
	return s, nil
}

type LinkParticipantHandler struct {
	handler
	users user.Repository
}

func (h *LinkParticipantHandler) Handle(ctx context.Context, cmd LinkParticipant) (bot.Participant, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Participant
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		u, err := h.users.FindByEmail(ctx, cmd.Email)
		if err != nil {
			return nil, err
		}
		p, err := bot.LinkParticipant(cmd.BotUID, u.UID(), cmd.Role)
		if err != nil {
			return nil, err
		}
		if err := uow.Participants().Create(ctx, p); err != nil {
			return nil, err
		}
		out = p
		return p.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type UnlinkParticipantHandler struct {
	handler
}

func (h *UnlinkParticipantHandler) Handle(ctx context.Context, cmd UnlinkParticipant) (uuid.UUID, error) {
	if err := validate(cmd); err != nil {
		return uuid.Nil, err
	}
	var out uuid.UUID
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		p, err := uow.Participants().FindByBotAndUser(ctx, cmd.BotUID, cmd.ParticipantUserUID)
		if err != nil {
			return nil, err
		}
		if p.Role() == bot.RoleOwner {
			return nil, bot.ErrOwnerImmutable.WithMessage("the owner cannot be removed from bot %s", cmd.BotUID)
		}
		if err := uow.Participants().DeleteByUID(ctx, p.UID()); err != nil {
			return nil, err
		}
		out = p.UID()
		return []any{bot.ParticipantUnlinkedEvent{BotUID: cmd.BotUID, UserUID: cmd.ParticipantUserUID}}, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return out, nil
}

type UpdateParticipantRoleHandler struct {
	handler
}

func (h *UpdateParticipantRoleHandler) Handle(ctx context.Context, cmd UpdateParticipantRole) (bot.Participant, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out bot.Participant
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		p, err := uow.Participants().FindByBotAndUser(ctx, cmd.BotUID, cmd.ParticipantUserUID)
		if err != nil {
			return nil, err
		}
		if err := p.ChangeRole(cmd.Role); err != nil {
			return nil, err
		}
		if err := uow.Participants().Update(ctx, p); err != nil {
			return nil, err
		}
		out = p
		return p.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type UploadDocumentHandler struct {
	handler
}

func (h *UploadDocumentHandler) Handle(ctx context.Context, cmd UploadDocument) (bot.Document, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	d, err := bot.UploadDocument(cmd.BotUID, cmd.Filename, cmd.ContentType, cmd.Content)
	if err != nil {
		return nil, err
	}
	err = h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		if err := uow.Documents().Create(ctx, d); err != nil {
			return nil, err
		}
		return d.PullEvents(), nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

type DeleteDocumentHandler struct {
	handler
}

func (h *DeleteDocumentHandler) Handle(ctx context.Context, cmd DeleteDocument) (uuid.UUID, error) {
	if err := validate(cmd); err != nil {
		return uuid.Nil, err
	}
	err := h.run(ctx, func(ctx context.Context, uow bot.UnitOfWork) ([]any, error) {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, cmd.UserUID, cmd.BotUID, h.roles); err != nil {
			return nil, err
		}
		d, err := uow.Documents().FindByUID(ctx, cmd.DocumentUID)
		if err != nil {
			return nil, err
		}
		if d.BotUID() != cmd.BotUID {
			return nil, bot.ErrDocumentNotFound.WithMessage("document %s does not belong to bot %s", cmd.DocumentUID, cmd.BotUID)
		}
		if err := uow.Documents().DeleteByUID(ctx, d.UID()); err != nil {
			return nil, err
		}
		return []any{bot.DocumentDeletedEvent{BotUID: cmd.BotUID, DocumentUID: d.UID()}}, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return cmd.DocumentUID, nil
}
