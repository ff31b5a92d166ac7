package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	convServices "github.com/iota-uz/bothub/modules/conversation/services"
	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/mediator"
	"github.com/iota-uz/bothub/pkg/metrics"
)

type listener struct {
	linkUID uuid.UUID
	botUID  uuid.UUID
	cancel  context.CancelFunc
	done    chan struct{}
}

// Listeners is the table of running listeners keyed by bot service uid.
// Start and Stop are idempotent and serialized; every listener runs in its
// own goroutine until stopped or until the client gives up.
type Listeners struct {
	ops     sync.Mutex
	mu      sync.Mutex
	running map[uuid.UUID]*listener

	root     context.Context
	shutdown context.CancelFunc
	client   messenger.Client
	mediator *mediator.Mediator
	logger   *logrus.Entry
}

// NewListeners derives every listener context from base, which carries the
// values handlers need such as the database pool.
func NewListeners(base context.Context, client messenger.Client, m *mediator.Mediator, logger *logrus.Entry) *Listeners {
	root, cancel := context.WithCancel(context.WithoutCancel(base))
	return &Listeners{
		running:  make(map[uuid.UUID]*listener),
		root:     root,
		shutdown: cancel,
		client:   client,
		mediator: m,
		logger:   logger,
	}
}

// Start runs a listener for serviceUID. A listener already running for the
// same service and link is kept; one bound to another link is replaced.
func (t *Listeners) Start(serviceUID, linkUID, botUID uuid.UUID, session []byte) {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	current, ok := t.running[serviceUID]
	t.mu.Unlock()
	if ok {
		if current.linkUID == linkUID && current.botUID == botUID {
			return
		}
		t.stop(serviceUID, current)
	}

	ctx, cancel := context.WithCancel(t.root)
	l := &listener{linkUID: linkUID, botUID: botUID, cancel: cancel, done: make(chan struct{})}
	t.mu.Lock()
	t.running[serviceUID] = l
	t.mu.Unlock()

	logger := t.logger.WithFields(logrus.Fields{
		"service_uid": serviceUID,
		"link_uid":    linkUID,
		"bot_uid":     botUID,
	})
	ctx = composables.WithLogger(ctx, logger)
	gauge := metrics.Use().ListenersRunning
	gauge.Inc()
	logger.Info("telegram listener started")

	go func() {
		defer close(l.done)
		defer gauge.Dec()
		err := t.client.Listen(ctx, session, t.dispatch(botUID))

		t.mu.Lock()
		if t.running[serviceUID] == l {
			delete(t.running, serviceUID)
		}
		t.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("telegram listener terminated")
			return
		}
		logger.Info("telegram listener stopped")
	}()
}

// Stop cancels the listener of serviceUID and waits for it to exit. It
// reports the link the listener was bound to.
func (t *Listeners) Stop(serviceUID uuid.UUID) (uuid.UUID, bool) {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	l, ok := t.running[serviceUID]
	t.mu.Unlock()
	if !ok {
		return uuid.Nil, false
	}
	t.stop(serviceUID, l)
	return l.linkUID, true
}

// StopLink stops every listener bound to linkUID.
func (t *Listeners) StopLink(linkUID uuid.UUID) int {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	matched := make(map[uuid.UUID]*listener)
	for svc, l := range t.running {
		if l.linkUID == linkUID {
			matched[svc] = l
		}
	}
	t.mu.Unlock()
	for svc, l := range matched {
		t.stop(svc, l)
	}
	return len(matched)
}

// Close stops every listener. The table cannot be used afterwards.
func (t *Listeners) Close() {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.shutdown()
	t.mu.Lock()
	all := make(map[uuid.UUID]*listener, len(t.running))
	for svc, l := range t.running {
		all[svc] = l
	}
	t.mu.Unlock()
	for svc, l := range all {
		t.stop(svc, l)
	}
}

func (t *Listeners) Running(serviceUID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[serviceUID]
	return ok
}

func (t *Listeners) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

// stop must be called with ops held.
func (t *Listeners) stop(serviceUID uuid.UUID, l *listener) {
	l.cancel()
	<-l.done
	t.mu.Lock()
	if t.running[serviceUID] == l {
		delete(t.running, serviceUID)
	}
	t.mu.Unlock()
}

// dispatch feeds incoming messages for botUID into the conversation engine.
func (t *Listeners) dispatch(botUID uuid.UUID) messenger.Handler {
	return func(ctx context.Context, in messenger.Incoming) (string, error) {
		res, err := mediator.Execute[convServices.Result](ctx, t.mediator, convServices.ProcessIncomingMessage{
			Platform:       bot.PlatformTelegram,
			BotUID:         botUID,
			SenderID:       in.SenderID,
			SenderNumber:   in.SenderNumber,
			SenderNickname: in.SenderNickname,
			Content:        in.Content,
			Timestamp:      in.Timestamp,
		})
		if err != nil {
			return "", err
		}
		return res.Reply(), nil
	}
}
