package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/conversation/domain/aggregates/conversation"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/constants"
	"github.com/iota-uz/bothub/pkg/generation"
	"github.com/iota-uz/bothub/pkg/lock"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/serrors"
)

const (
	HandoffKeyword = "help"
	HandoffReply   = "Connecting you to support."
	FallbackReply  = "AI service temporarily unavailable. Your message has been saved."
	ProcessedReply = "Message processed successfully"
	HandoffStatus  = "Conversation handed off to support"

	createRetries = 3
)

func validate(msg any) error {
	err := constants.Validate.Struct(msg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return conversation.ErrInvalidConversation.WithMessage("field %s failed on %q", verrs[0].Field(), verrs[0].Tag()).Wrap(err)
	}
	return conversation.ErrInvalidConversation.Wrap(err)
}

func wantsHandoff(content string) bool {
	return strings.Contains(strings.ToLower(content), HandoffKeyword)
}

// botQuota charges the bot loaded in the current transaction and remembers
// how much was taken.
type botQuota struct {
	bot      bot.Bot
	deducted int
}

func (q *botQuota) Deduct(tokens int) error {
	if err := q.bot.DeductTokens(tokens); err != nil {
		return err
	}
	q.deducted += tokens
	return nil
}

type ProcessIncomingMessageHandler struct {
	conversations conversation.UnitOfWorkFactory
	bots          bot.UnitOfWorkFactory
	lookup        *botServices.BotLookup
	registry      *generation.Registry
	locks         *lock.Keyed
	mediator      *mediator.Mediator
}

func (h *ProcessIncomingMessageHandler) Handle(ctx context.Context, cmd ProcessIncomingMessage) (Result, error) {
	if err := validate(cmd); err != nil {
		return Result{}, err
	}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"bot_uid":   cmd.BotUID,
		"platform":  cmd.Platform,
		"sender_id": cmd.SenderID,
	})

	b, err := h.lookup.Get(ctx, cmd.BotUID)
	if err != nil {
		return Result{}, err
	}

	// The lock is taken outside the transaction; a waiter holding an open
	// transaction would block the holder's commit.
	unlock, err := h.locks.Lock(ctx, fmt.Sprintf("%s:%s:%s", cmd.Platform, cmd.SenderID, cmd.BotUID))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var (
		result Result
		events []any
	)
	attempt := func() error {
		events = nil
		err := h.conversations.Do(ctx, func(ctx context.Context, uow conversation.UnitOfWork) error {
			r, evs, err := h.process(ctx, uow, b, cmd)
			result, events = r, evs
			return err
		})
		if errors.Is(err, conversation.ErrConversationAlreadyExists) {
			logger.Debug("conversation created concurrently, retrying")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), createRetries),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		if serrors.CodeOf(err) == "" && ctx.Err() == nil {
			logger.WithError(err).Error("failed to process incoming message")
		}
		return Result{}, serrors.AsProcessing(err)
	}

	h.mediator.Publish(ctx, events...)
	return result, nil
}

func (h *ProcessIncomingMessageHandler) process(
	ctx context.Context,
	uow conversation.UnitOfWork,
	cached bot.Bot,
	cmd ProcessIncomingMessage,
) (Result, []any, error) {
	conv, err := h.resolve(ctx, uow, cached, cmd)
	if err != nil {
		return Result{}, nil, err
	}

	userMsg := conversation.NewMessage(conv.UID(), conversation.RoleUser, cmd.Content, cmd.Timestamp)
	if err := h.append(ctx, uow, conv, userMsg); err != nil {
		return Result{}, nil, err
	}
	result := Result{ConversationUID: conv.UID(), UserMessageUID: userMsg.UID()}

	if wantsHandoff(cmd.Content) {
		reply := conversation.NewMessage(conv.UID(), conversation.RoleAssistant, HandoffReply, time.Time{})
		if err := h.append(ctx, uow, conv, reply); err != nil {
			return Result{}, nil, err
		}
		result.AIMessageUID = reply.UID()
		result.AIResponseContent = HandoffReply
		result.Message = HandoffStatus
		return result, conv.PullEvents(), uow.Conversations().Update(ctx, conv)
	}

	err = h.bots.Do(ctx, func(ctx context.Context, botUoW bot.UnitOfWork) error {
		// The snapshot only pre-checks the budget. The stored quota is charged
		// below with a conditional decrement, so concurrent senders and
		// settings edits made during generation are kept.
		b, err := botUoW.Bots().FindByUID(ctx, cmd.BotUID)
		if err != nil {
			return err
		}
		settings := b.AISettings()
		adapter, err := h.registry.Get(settings.GenerationModel())
		if err != nil {
			return err
		}
		quota := &botQuota{bot: b}
		text, err := adapter.Generate(ctx, generation.Request{
			Messages:     prompt(conv.Messages()),
			SystemPrompt: settings.Instructions(),
			Config: generation.Config{
				Model:             settings.GenerationModel(),
				Temperature:       settings.Temperature(),
				TopP:              settings.TopP(),
				TopK:              settings.TopK(),
				MaxResponse:       settings.MaxResponse(),
				RepetitionPenalty: settings.RepetitionPenalty(),
			},
			Quota:           quota,
			LastUserMessage: cmd.Content,
		})
		if err != nil {
			return err
		}
		if quota.deducted > 0 {
			if err := botUoW.Bots().ChargeTokens(ctx, b.UID(), quota.deducted); err != nil {
				return err
			}
		}
		if text == "" {
			result.Message = FallbackReply
			return nil
		}
		reply := conversation.NewMessage(conv.UID(), conversation.RoleAssistant, text, time.Time{},
			conversation.WithTokens(0, quota.deducted),
		)
		if err := h.append(ctx, uow, conv, reply); err != nil {
			return err
		}
		result.AIResponseGenerated = true
		result.AIMessageUID = reply.UID()
		result.AIResponseContent = text
		result.Message = ProcessedReply
		return nil
	})
	if err != nil {
		return Result{}, nil, err
	}
	return result, conv.PullEvents(), uow.Conversations().Update(ctx, conv)
}

func (h *ProcessIncomingMessageHandler) resolve(
	ctx context.Context,
	uow conversation.UnitOfWork,
	b bot.Bot,
	cmd ProcessIncomingMessage,
) (conversation.Conversation, error) {
	conv, err := uow.Conversations().FindBySender(ctx, cmd.Platform, cmd.SenderID, cmd.BotUID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, conversation.ErrConversationNotFound) {
		return nil, err
	}
	conv, err = conversation.Start(b.OwnerUID(), b.UID(), cmd.Platform, conversation.Participant{
		SenderID:       cmd.SenderID,
		SenderNumber:   cmd.SenderNumber,
		SenderNickname: cmd.SenderNickname,
	}, b.Name())
	if err != nil {
		return nil, err
	}
	if err := uow.Conversations().Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (h *ProcessIncomingMessageHandler) append(
	ctx context.Context,
	uow conversation.UnitOfWork,
	conv conversation.Conversation,
	msg conversation.Message,
) error {
	if !conv.AddMessage(msg) {
		return nil
	}
	return uow.Messages().Create(ctx, msg)
}

func prompt(history []conversation.Message) []generation.Message {
	out := make([]generation.Message, 0, len(history))
	for _, m := range history {
		out = append(out, generation.Message{Role: generation.Role(m.Role()), Content: m.Content()})
	}
	return out
}
