package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/mediator"
)

type Notification struct {
	UserUID uuid.UUID
	BotUID  uuid.UUID
	Subject string
	Body    string
}

// Notifier delivers notifications to users out of band (email, push).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It stands in until a real
// delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"user_uid": n.UserUID,
		"bot_uid":  n.BotUID,
		"subject":  n.Subject,
	}).Info(n.Body)
	return nil
}

func on[E any](m *mediator.Mediator, fns ...func(ctx context.Context, event E) error) error {
	factories := make([]func() mediator.EventHandler[E], 0, len(fns))
	for _, fn := range fns {
		h := mediator.EventHandlerFunc[E](fn)
		factories = append(factories, func() mediator.EventHandler[E] { return h })
	}
	return mediator.RegisterEvents(m, factories...)
}

func invalidate[E any](lookup *BotLookup, botUID func(E) uuid.UUID) func(ctx context.Context, event E) error {
	return func(ctx context.Context, event E) error {
		return lookup.Invalidate(ctx, botUID(event))
	}
}

func audit[E any](logger *logrus.Entry) func(ctx context.Context, event E) error {
	return func(_ context.Context, event E) error {
		logger.WithField("event", fmt.Sprintf("%T", event)).Infof("%+v", event)
		return nil
	}
}

func registerEventHandlers(m *mediator.Mediator, lookup *BotLookup, notifier Notifier, logger *logrus.Entry) error {
	auditLog := logger.WithField("component", "bot.audit")
	regs := []error{
		on(m, audit[bot.CreatedEvent](auditLog)),
		on(m, audit[bot.DuplicatedEvent](auditLog)),
		on(m, audit[bot.ServiceReservedEvent](auditLog)),
		on(m, audit[bot.ServiceLinkedEvent](auditLog)),
		on(m, audit[bot.ServiceUnlinkedEvent](auditLog)),
		on(m, audit[bot.DocumentUploadedEvent](auditLog)),
		on(m, audit[bot.DocumentDeletedEvent](auditLog)),
		on(m, audit[bot.ParticipantUnlinkedEvent](auditLog)),
		on(m, audit[bot.ParticipantRoleChangedEvent](auditLog)),

		on(m, invalidate(lookup, func(e bot.DetailsUpdatedEvent) uuid.UUID { return e.BotUID })),
		on(m, invalidate(lookup, func(e bot.AISettingsUpdatedEvent) uuid.UUID { return e.BotUID })),
		on(m, invalidate(lookup, func(e bot.TokenLimitUpdatedEvent) uuid.UUID { return e.BotUID })),
		on(m, invalidate(lookup, func(e bot.ActivatedEvent) uuid.UUID { return e.BotUID })),
		on(m, invalidate(lookup, func(e bot.SuspendedEvent) uuid.UUID { return e.BotUID })),
		on(m,
			invalidate(lookup, func(e bot.DeletedEvent) uuid.UUID { return e.BotUID }),
			audit[bot.DeletedEvent](auditLog),
		),
		on(m,
			invalidate(lookup, func(e bot.OwnershipTransferredEvent) uuid.UUID { return e.BotUID }),
			func(ctx context.Context, e bot.OwnershipTransferredEvent) error {
				return notifier.Notify(ctx, Notification{
					UserUID: e.NewOwner,
					BotUID:  e.BotUID,
					Subject: "bot ownership transferred",
					Body:    fmt.Sprintf("you are now the owner of bot %s", e.BotUID),
				})
			},
		),
		on(m, func(ctx context.Context, e bot.ParticipantLinkedEvent) error {
			return notifier.Notify(ctx, Notification{
				UserUID: e.UserUID,
				BotUID:  e.BotUID,
				Subject: "added to bot",
				Body:    fmt.Sprintf("you were added to bot %s as %s", e.BotUID, e.Role),
			})
		}),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}
