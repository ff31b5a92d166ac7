// Package mtproto implements messenger.Client for Telegram user accounts on
// top of gotd.
package mtproto

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
)

type Config struct {
	AppID   int
	AppHash string
	// DialTimeout bounds the one-shot login calls; listeners run until
	// cancelled.
	DialTimeout time.Duration
}

type Client struct {
	cfg    Config
	logger *logrus.Entry
}

var _ messenger.Client = (*Client)(nil)

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, logger: logger.WithField("component", "mtproto")}
}

func (c *Client) newClient(storage *sessionStorage, handler telegram.UpdateHandler) *telegram.Client {
	return telegram.NewClient(c.cfg.AppID, c.cfg.AppHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  handler,
		NoUpdates:      handler == nil,
	})
}

// once runs fn on a connected client and disconnects afterwards.
func (c *Client) once(ctx context.Context, storage *sessionStorage, fn func(ctx context.Context, client *telegram.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	client := c.newClient(storage, nil)
	return mapError(client.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, client)
	}))
}

func (c *Client) RequestLoginCode(ctx context.Context, phone string) (messenger.LoginCode, error) {
	storage := newSessionStorage(nil)
	var hash string
	err := c.once(ctx, storage, func(ctx context.Context, client *telegram.Client) error {
		sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		code, ok := sent.(*tg.AuthSentCode)
		if !ok {
			return errors.Errorf("unexpected sent code %T", sent)
		}
		hash = code.PhoneCodeHash
		return nil
	})
	if err != nil {
		return messenger.LoginCode{}, err
	}
	return messenger.LoginCode{PhoneCodeHash: hash, Session: storage.Bytes()}, nil
}

func (c *Client) SubmitLoginCode(
	ctx context.Context,
	phone, code, phoneCodeHash string,
	session []byte,
) (messenger.Authorization, error) {
	storage := newSessionStorage(session)
	var account messenger.Account
	err := c.once(ctx, storage, func(ctx context.Context, client *telegram.Client) error {
		a, err := client.Auth().SignIn(ctx, phone, code, phoneCodeHash)
		if err != nil {
			return err
		}
		if u, ok := a.User.(*tg.User); ok {
			account = toAccount(u)
		}
		return nil
	})
	if err != nil {
		return messenger.Authorization{}, err
	}
	return messenger.Authorization{Session: storage.Bytes(), Account: account}, nil
}

func (c *Client) GetMe(ctx context.Context, session []byte) (messenger.Account, error) {
	var account messenger.Account
	err := c.once(ctx, newSessionStorage(session), func(ctx context.Context, client *telegram.Client) error {
		u, err := client.Self(ctx)
		if err != nil {
			return err
		}
		account = toAccount(u)
		return nil
	})
	return account, err
}

func (c *Client) IsAuthorized(ctx context.Context, session []byte) (bool, error) {
	var authorized bool
	err := c.once(ctx, newSessionStorage(session), func(ctx context.Context, client *telegram.Client) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		authorized = status.Authorized
		return nil
	})
	return authorized, err
}

func (c *Client) Listen(ctx context.Context, session []byte, handler messenger.Handler) error {
	dispatcher := tg.NewUpdateDispatcher()
	client := c.newClient(newSessionStorage(session), dispatcher)
	sender := message.NewSender(client.API())

	answer := func(ctx context.Context, e tg.Entities, u message.AnswerableMessageUpdate, msg tg.MessageClass) error {
		m, ok := msg.(*tg.Message)
		if !ok || m.Out || strings.TrimSpace(m.Message) == "" {
			return nil
		}
		in := toIncoming(e, m)
		logger := c.logger.WithField("sender_id", in.SenderID)
		reply, err := handler(ctx, in)
		if err != nil {
			logger.WithError(err).Warn("failed to handle incoming message")
			return nil
		}
		if reply == "" {
			return nil
		}
		if _, err := sender.Answer(e, u).Text(ctx, reply); err != nil {
			logger.WithError(mapError(err)).Warn("failed to send reply")
		}
		return nil
	}
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return answer(ctx, e, u, u.Message)
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return answer(ctx, e, u, u.Message)
	})

	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			return messenger.ErrAuthFailure.WithMessage("session is not authorized")
		}
		// Telegram starts pushing updates once the client asked for the state.
		if _, err := client.API().UpdatesGetState(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return mapError(err)
}

func toAccount(u *tg.User) messenger.Account {
	return messenger.Account{UserID: u.ID, Username: u.Username, Phone: u.Phone}
}

func toIncoming(e tg.Entities, m *tg.Message) messenger.Incoming {
	in := messenger.Incoming{
		Content:   m.Message,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}
	peer, ok := m.GetFromID()
	if !ok {
		peer = m.PeerID
	}
	if p, ok := peer.(*tg.PeerUser); ok {
		in.SenderID = strconv.FormatInt(p.UserID, 10)
		if u, ok := e.Users[p.UserID]; ok {
			in.SenderNumber = u.Phone
			in.SenderNickname = nickname(u)
		}
	}
	return in
}

func nickname(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
