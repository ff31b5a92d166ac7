package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/metrics"
)

func registerEventHandlers(m *mediator.Mediator, logger *logrus.Entry) error {
	started := mediator.EventHandlerFunc[conversation.StartedEvent](func(_ context.Context, e conversation.StartedEvent) error {
		logger.WithFields(logrus.Fields{
			"conversation_uid": e.ConversationUID,
			"bot_uid":          e.BotUID,
			"platform":         e.Platform,
			"sender_id":        e.SenderID,
		}).Info("conversation started")
		return nil
	})
	added := mediator.EventHandlerFunc[conversation.MessageAddedEvent](func(_ context.Context, e conversation.MessageAddedEvent) error {
		metrics.Use().MessagesTotal.WithLabelValues(string(e.Platform), string(e.Role)).Inc()
		return nil
	})

	if err := mediator.RegisterEvents(m, func() mediator.EventHandler[conversation.StartedEvent] { return started }); err != nil {
		return err
	}
	return mediator.RegisterEvents(m, func() mediator.EventHandler[conversation.MessageAddedEvent] { return added })
}
