package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/cache"
	"github.com/iota-uz/bothub/pkg/composables"
)

const DefaultBotCacheTTL = 5 * time.Minute

// BotLookup resolves bots for channel adapters. Snapshots are cached for
// ttl and dropped by the invalidation event handlers whenever the bot
// changes.
type BotLookup struct {
	uowFactory bot.UnitOfWorkFactory
	cache      cache.Store
	ttl        time.Duration
}

func NewBotLookup(uowFactory bot.UnitOfWorkFactory, store cache.Store, ttl time.Duration) *BotLookup {
	if ttl <= 0 {
		ttl = DefaultBotCacheTTL
	}
	return &BotLookup{uowFactory: uowFactory, cache: store, ttl: ttl}
}

func botCacheKey(uid uuid.UUID) string {
	return "bot:" + uid.String()
}

func (l *BotLookup) Get(ctx context.Context, botUID uuid.UUID) (bot.Bot, error) {
	logger := composables.UseLogger(ctx).WithField("bot_uid", botUID)
	if l.cache != nil {
		raw, err := l.cache.Get(ctx, botCacheKey(botUID))
		switch {
		case err == nil:
			var m models.Bot
			if err := json.Unmarshal(raw, &m); err == nil {
				if b, err := persistence.ToDomainBot(m); err == nil {
					return b, nil
				}
			}
			logger.Warn("discarding unreadable cached bot")
		case !errors.Is(err, cache.ErrKeyNotFound):
			logger.WithError(err).Warn("bot cache read failed")
		}
	}

	var out bot.Bot
	err := l.uowFactory.Do(ctx, func(ctx context.Context, uow bot.UnitOfWork) error {
		b, err := uow.Bots().FindByUID(ctx, botUID)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if raw, err := json.Marshal(persistence.ToDBBot(out)); err == nil {
			if err := l.cache.Set(ctx, botCacheKey(botUID), raw, l.ttl); err != nil {
				logger.WithError(err).Warn("bot cache write failed")
			}
		}
	}
	return out, nil
}

func (l *BotLookup) Invalidate(ctx context.Context, botUID uuid.UUID) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, botCacheKey(botUID))
}
