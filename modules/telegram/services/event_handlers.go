package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type eventHandlers struct {
	manager *SessionManager
	logger  *logrus.Entry
}

// onServiceUnlinked switches off the link an unlinked service was bound to
// and stops its listener when one is running.
func (h eventHandlers) onServiceUnlinked(ctx context.Context, e bot.ServiceUnlinkedEvent) error {
	if e.Platform != bot.PlatformTelegram {
		return nil
	}
	linkUID := e.LinkedAccountUID
	if stopped, ok := h.manager.listeners.Stop(e.ServiceUID); ok && linkUID == uuid.Nil {
		linkUID = stopped
	}
	if linkUID == uuid.Nil {
		return nil
	}
	return h.manager.links.Do(ctx, func(ctx context.Context, uow accountlink.UnitOfWork) error {
		l, err := uow.Links().FindByUID(ctx, linkUID)
		if errors.Is(err, accountlink.ErrLinkNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Reassigned or relinked links moved on and keep their state.
		if l.BotUID() != e.BotUID || !l.IsActive() {
			return nil
		}
		l.Deactivate()
		return uow.Links().Update(ctx, l)
	})
}

// onBotDeleted stops the deleted bot's listeners and switches its links off.
// Listeners are stopped outside the transaction: a running listener may be
// waiting for one itself.
func (h eventHandlers) onBotDeleted(ctx context.Context, e bot.DeletedEvent) error {
	for _, svc := range e.ServiceUIDs {
		h.manager.listeners.Stop(svc)
	}
	var deactivated []accountlink.Link
	err := h.manager.links.Do(ctx, func(ctx context.Context, uow accountlink.UnitOfWork) error {
		links, err := uow.Links().FindByBot(ctx, e.BotUID)
		if err != nil {
			return err
		}
		for _, l := range links {
			l.Deactivate()
			if err := uow.Links().Update(ctx, l); err != nil {
				return err
			}
		}
		deactivated = links
		return nil
	})
	if err != nil {
		return err
	}
	for _, l := range deactivated {
		h.manager.listeners.StopLink(l.UID())
	}
	h.logger.WithField("bot_uid", e.BotUID).Infof("deactivated %d telegram links of deleted bot", len(deactivated))
	return nil
}

func registerEventHandlers(m *mediator.Mediator, h eventHandlers) error {
	unlinked := mediator.EventHandlerFunc[bot.ServiceUnlinkedEvent](h.onServiceUnlinked)
	if err := mediator.RegisterEvents(m, func() mediator.EventHandler[bot.ServiceUnlinkedEvent] { return unlinked }); err != nil {
		return err
	}
	deleted := mediator.EventHandlerFunc[bot.DeletedEvent](h.onBotDeleted)
	return mediator.RegisterEvents(m, func() mediator.EventHandler[bot.DeletedEvent] { return deleted })
}
