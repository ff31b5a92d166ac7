package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/pkg/serrors"
)

type AccessService struct {
	uowFactory bot.UnitOfWorkFactory
}

func NewAccessService(uowFactory bot.UnitOfWorkFactory) *AccessService {
	return &AccessService{uowFactory: uowFactory}
}

// CheckSingleBotAccess loads the bot and checks that userUID may act on it.
// The owner always passes; any other user needs a participant row whose role
// is in roles. An empty roles set admits every participant.
func (s *AccessService) CheckSingleBotAccess(
	ctx context.Context,
	uow bot.UnitOfWork,
	userUID, botUID uuid.UUID,
	roles []bot.Role,
) (bot.Bot, error) {
	b, err := uow.Bots().FindByUID(ctx, botUID)
	if err != nil {
		return nil, err
	}
	if b.OwnerUID() == userUID {
		return b, nil
	}
	p, err := uow.Participants().FindByBotAndUser(ctx, botUID, userUID)
	if errors.Is(err, bot.ErrParticipantNotFound) {
		return nil, serrors.ErrAccessDenied.WithMessage("user %s has no access to bot %s", userUID, botUID)
	}
	if err != nil {
		return nil, err
	}
	if !bot.Allows(roles, p.Role()) {
		return nil, serrors.ErrAccessDenied.WithMessage("role %s is not allowed for this operation", p.Role())
	}
	return b, nil
}

// GetAccessibleBots merges owned bots with bots the user participates in
// under one of roles, deduplicated by uid.
func (s *AccessService) GetAccessibleBots(
	ctx context.Context,
	uow bot.UnitOfWork,
	userUID uuid.UUID,
	roles []bot.Role,
) ([]bot.Bot, error) {
	owned, err := uow.Bots().FindByOwner(ctx, userUID)
	if err != nil {
		return nil, err
	}
	participations, err := uow.Participants().FindByUser(ctx, userUID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(owned))
	out := make([]bot.Bot, 0, len(owned)+len(participations))
	for _, b := range owned {
		seen[b.UID()] = struct{}{}
		out = append(out, b)
	}
	uids := make([]uuid.UUID, 0, len(participations))
	for _, p := range participations {
		if _, ok := seen[p.BotUID()]; ok || !bot.Allows(roles, p.Role()) {
			continue
		}
		uids = append(uids, p.BotUID())
	}
	shared, err := uow.Bots().FindByUIDs(ctx, uids)
	if err != nil {
		return nil, err
	}
	for _, b := range shared {
		if _, ok := seen[b.UID()]; ok {
			continue
		}
		seen[b.UID()] = struct{}{}
		out = append(out, b)
	}
	return out, nil
}

// CheckAccess is CheckSingleBotAccess in a unit of work of its own.
func (s *AccessService) CheckAccess(ctx context.Context, userUID, botUID uuid.UUID, roles []bot.Role) (bot.Bot, error) {
	var out bot.Bot
	err := s.uowFactory.Do(ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		b, err := s.CheckSingleBotAccess(ctx, uow, userUID, botUID, roles)
		out = b
		return err
	})
	return out, err
}
