package services

import (
	"context"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
)

type ListBotsHandler struct {
	handler
}

func (h *ListBotsHandler) Handle(ctx context.Context, q ListBots) ([]bot.Bot, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	var out []bot.Bot
	err := h.uow.Do(ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		bots, err := h.access.GetAccessibleBots(ctx, uow, q.UserUID, q.Roles)
		out = bots
		return err
	})
	return out, err
}

type GetBotHandler struct {
	handler
}

func (h *GetBotHandler) Handle(ctx context.Context, q GetBot) (bot.Bot, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	return h.access.CheckAccess(ctx, q.UserUID, q.BotUID, h.roles)
}

// listHandler gates a per-bot listing on participation and loads the rows
// through load.
type listHandler[Q any, T any] struct {
	handler
	target func(Q) GetBot
	load   func(ctx context.Context, uow bot.UnitOfWork, q Q) ([]T, error)
}

func (h *listHandler[Q, T]) Handle(ctx context.Context, q Q) ([]T, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	t := h.target(q)
	var out []T
	err := h.uow.Do(ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		if _, err := h.access.CheckSingleBotAccess(ctx, uow, t.UserUID, t.BotUID, h.roles); err != nil {
			return err
		}
		rows, err := h.load(ctx, uow, q)
		out = rows
		return err
	})
	return out, err
}

func loadParticipants(ctx context.Context, uow bot.UnitOfWork, q ListParticipants) ([]bot.Participant, error) {
	return uow.Participants().FindByBot(ctx, q.BotUID)
}

func loadServices(ctx context.Context, uow bot.UnitOfWork, q ListServices) ([]bot.Service, error) {
	return uow.Services().FindByBot(ctx, q.BotUID)
}

func loadDocuments(ctx context.Context, uow bot.UnitOfWork, q ListDocuments) ([]bot.Document, error) {
	return uow.Documents().FindByBot(ctx, q.BotUID)
}
