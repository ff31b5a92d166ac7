package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	convServices "github.com/iota-uz/bothub/modules/conversation/services"
	"github.com/iota-uz/bothub/modules/playground/domain/session"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/metrics"
)

// NewFrameLimiter allows perMinute frames per user across all of the
// user's playground sockets. A non-positive rate disables limiting.
func NewFrameLimiter(perMinute int64) *limiter.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: perMinute})
}

type PlaygroundService struct {
	mediator *mediator.Mediator
	access   *botServices.AccessService
	frames   *limiter.Limiter
}

func NewPlaygroundService(m *mediator.Mediator, access *botServices.AccessService, frames *limiter.Limiter) *PlaygroundService {
	return &PlaygroundService{
		mediator: m,
		access:   access,
		frames:   frames,
	}
}

// Open performs the handshake. The returned session is connected; callers
// must Close it.
func (s *PlaygroundService) Open(ctx context.Context, userUID, botUID uuid.UUID) (*session.Session, error) {
	if _, err := s.access.CheckAccess(ctx, userUID, botUID, bot.RolesOwnerAdminEditor); err != nil {
		return nil, err
	}
	sess := session.New(botUID, userUID)
	if err := sess.Accept(); err != nil {
		return nil, err
	}
	metrics.Use().PlaygroundSessions.Inc()
	return sess, nil
}

// Send runs one frame through the conversation engine on behalf of the
// session's user.
func (s *PlaygroundService) Send(ctx context.Context, sess *session.Session, content string) (convServices.Result, error) {
	if !sess.IsConnected() {
		return convServices.Result{}, session.ErrSessionClosed
	}
	if s.frames != nil {
		lctx, err := s.frames.Get(ctx, sess.UserUID().String())
		if err != nil {
			return convServices.Result{}, err
		}
		if lctx.Reached {
			return convServices.Result{}, session.ErrRateLimited.WithMessage(
				"limit of %d messages per minute reached, retry after %s",
				lctx.Limit, time.Unix(lctx.Reset, 0).UTC().Format(time.RFC3339),
			)
		}
	}
	return mediator.Execute[convServices.Result](ctx, s.mediator, convServices.ProcessIncomingMessage{
		Platform:  bot.PlatformPlayground,
		BotUID:    sess.BotUID(),
		SenderID:  sess.UserUID().String(),
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Close is idempotent.
func (s *PlaygroundService) Close(sess *session.Session, code int) {
	if sess.Close(code) {
		metrics.Use().PlaygroundSessions.Dec()
	}
}
