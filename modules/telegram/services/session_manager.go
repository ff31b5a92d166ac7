package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	botServices "github.com/iota-uz/bothub/modules/bot/services"
	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/lock"
	"github.com/iota-uz/bothub/pkg/mediator"
)

// SessionManager links Telegram user accounts to bots and keeps one
// listener running per active link.
type SessionManager struct {
	links     accountlink.UnitOfWorkFactory
	bots      bot.UnitOfWorkFactory
	access    *botServices.AccessService
	client    messenger.Client
	listeners *Listeners
	mediator  *mediator.Mediator
	phones    *lock.Keyed
}

func NewSessionManager(
	links accountlink.UnitOfWorkFactory,
	bots bot.UnitOfWorkFactory,
	access *botServices.AccessService,
	client messenger.Client,
	listeners *Listeners,
	m *mediator.Mediator,
) *SessionManager {
	return &SessionManager{
		links:     links,
		bots:      bots,
		access:    access,
		client:    client,
		listeners: listeners,
		mediator:  m,
		phones:    lock.NewKeyed(),
	}
}

func (s *SessionManager) Listeners() *Listeners {
	return s.listeners
}

// tx runs fn with both units of work bound to one transaction.
func (s *SessionManager) tx(
	ctx context.Context,
	fn func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error),
) ([]any, error) {
	var events []any
	err := s.links.Do(ctx, func(ctx context.Context, uow accountlink.UnitOfWork) error {
		return s.bots.Do(ctx, func(ctx context.Context, botUoW bot.UnitOfWork) error {
			evs, err := fn(ctx, uow.Links(), botUoW)
			events = evs
			return err
		})
	})
	return events, err
}

func (s *SessionManager) lockPhone(ctx context.Context, raw string) (string, func(), error) {
	phone, err := accountlink.NormalizePhone(raw)
	if err != nil {
		return "", nil, err
	}
	unlock, err := s.phones.Lock(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	return phone, unlock, nil
}

func (s *SessionManager) RequestCode(ctx context.Context, cmd RequestCode) (CodeRequested, error) {
	if err := validate(cmd); err != nil {
		return CodeRequested{}, err
	}
	phone, unlock, err := s.lockPhone(ctx, cmd.Phone)
	if err != nil {
		return CodeRequested{}, err
	}
	defer unlock()

	if _, err := s.access.CheckAccess(ctx, cmd.UserUID, cmd.BotUID, bot.RolesOwner); err != nil {
		return CodeRequested{}, err
	}
	code, err := s.client.RequestLoginCode(ctx, phone)
	if err != nil {
		return CodeRequested{}, err
	}

	var (
		out      CodeRequested
		released []bot.Service
	)
	events, err := s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		existing, err := links.FindByPhone(ctx, phone)
		switch {
		case errors.Is(err, accountlink.ErrLinkNotFound):
			l, err := accountlink.Request(cmd.BotUID, cmd.UserUID, phone, code.PhoneCodeHash, code.Session)
			if err != nil {
				return nil, err
			}
			if err := links.Create(ctx, l); err != nil {
				return nil, err
			}
			out = CodeRequested{LinkUID: l.UID(), PhoneCodeHash: code.PhoneCodeHash}
			return l.PullEvents(), nil
		case err != nil:
			return nil, err
		}

		var events []any
		if existing.IsActive() {
			released, err = releaseLinkedServices(ctx, botUoW, existing)
			if err != nil {
				return nil, err
			}
			for _, svc := range released {
				events = append(events, svc.PullEvents()...)
			}
		}
		existing.Relink(cmd.BotUID, cmd.UserUID, code.PhoneCodeHash, code.Session)
		if err := links.Update(ctx, existing); err != nil {
			return nil, err
		}
		out = CodeRequested{LinkUID: existing.UID(), PhoneCodeHash: code.PhoneCodeHash}
		return append(existing.PullEvents(), events...), nil
	})
	if err != nil {
		return CodeRequested{}, err
	}
	for _, svc := range released {
		s.listeners.Stop(svc.UID())
	}
	s.mediator.Publish(ctx, events...)
	return out, nil
}

func (s *SessionManager) SubmitCode(ctx context.Context, cmd SubmitCode) (accountlink.Link, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	phone, unlock, err := s.lockPhone(ctx, cmd.Phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var pending accountlink.Link
	_, err = s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		if _, err := s.access.CheckSingleBotAccess(ctx, botUoW, cmd.UserUID, cmd.BotUID, bot.RolesOwner); err != nil {
			return nil, err
		}
		l, err := links.FindByPhone(ctx, phone)
		if err != nil {
			if errors.Is(err, accountlink.ErrLinkNotFound) {
				return nil, accountlink.ErrLinkNotFound.WithMessage("no code was requested for %s", phone)
			}
			return nil, err
		}
		if l.BotUID() != cmd.BotUID {
			return nil, accountlink.ErrAuth.WithMessage(
				"phone %s is linked to another bot through link %s; reassign link %s to bot %s first",
				phone, l.UID(), l.UID(), cmd.BotUID,
			)
		}
		if !l.IsProvisional() {
			return nil, accountlink.ErrAuth.WithMessage("link %s has no pending login code; request a new code", l.UID())
		}
		if _, err := botUoW.Services().FindReserved(ctx, cmd.BotUID, bot.PlatformTelegram); err != nil {
			return nil, err
		}
		pending = l
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	auth, err := s.client.SubmitLoginCode(ctx, phone, cmd.Code, pending.PhoneCodeHash(), pending.Session())
	if err != nil {
		return nil, err
	}

	var (
		out     accountlink.Link
		service bot.Service
	)
	events, err := s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		l, err := links.FindByUID(ctx, pending.UID())
		if err != nil {
			return nil, err
		}
		if l.BotUID() != cmd.BotUID || l.PhoneCodeHash() != pending.PhoneCodeHash() {
			return nil, accountlink.ErrAuth.WithMessage("login code request for link %s was superseded", l.UID())
		}
		if err := l.Activate(auth.Session, auth.Account.UserID, auth.Account.Username); err != nil {
			return nil, err
		}
		if err := links.Update(ctx, l); err != nil {
			return nil, err
		}
		svc, err := activateReserved(ctx, botUoW, l)
		if err != nil {
			return nil, err
		}
		out, service = l, svc
		return append(l.PullEvents(), svc.PullEvents()...), nil
	})
	if err != nil {
		return nil, err
	}

	s.listeners.Start(service.UID(), out.UID(), out.BotUID(), out.Session())
	s.mediator.Publish(ctx, events...)
	return out, nil
}

func (s *SessionManager) Reassign(ctx context.Context, cmd ReassignLink) (accountlink.Link, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var (
		out      accountlink.Link
		released []bot.Service
		service  bot.Service
	)
	events, err := s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		l, err := links.FindByUID(ctx, cmd.LinkUID)
		if err != nil {
			return nil, err
		}
		// Unlinking from the current bot is open to admins, linking to the
		// new one only to its owner.
		if _, err := s.access.CheckSingleBotAccess(ctx, botUoW, cmd.UserUID, l.BotUID(), bot.RolesOwnerAdmin); err != nil {
			return nil, err
		}
		if _, err := s.access.CheckSingleBotAccess(ctx, botUoW, cmd.UserUID, cmd.NewBotUID, bot.RolesOwner); err != nil {
			return nil, err
		}
		out = l
		if l.BotUID() == cmd.NewBotUID {
			return nil, nil
		}

		var events []any
		if l.IsActive() {
			released, err = releaseLinkedServices(ctx, botUoW, l)
			if err != nil {
				return nil, err
			}
			for _, svc := range released {
				events = append(events, svc.PullEvents()...)
			}
		}
		if err := l.Reassign(cmd.NewBotUID); err != nil {
			return nil, err
		}
		if err := links.Update(ctx, l); err != nil {
			return nil, err
		}
		if l.IsActive() {
			service, err = activateReserved(ctx, botUoW, l)
			if err != nil {
				return nil, err
			}
			events = append(events, service.PullEvents()...)
		}
		return append(l.PullEvents(), events...), nil
	})
	if err != nil {
		return nil, err
	}

	for _, svc := range released {
		s.listeners.Stop(svc.UID())
	}
	if service != nil {
		s.listeners.Start(service.UID(), out.UID(), out.BotUID(), out.Session())
	}
	s.mediator.Publish(ctx, events...)
	return out, nil
}

func (s *SessionManager) DeactivateLink(ctx context.Context, cmd DeactivateLink) (accountlink.Link, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	var out accountlink.Link
	events, err := s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		l, err := links.FindByUID(ctx, cmd.LinkUID)
		if err != nil {
			return nil, err
		}
		if _, err := s.access.CheckSingleBotAccess(ctx, botUoW, cmd.UserUID, l.BotUID(), bot.RolesOwnerAdmin); err != nil {
			return nil, err
		}
		events, err := s.deactivate(ctx, links, botUoW, l)
		out = l
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.listeners.StopLink(out.UID())
	s.mediator.Publish(ctx, events...)
	return out, nil
}

func (s *SessionManager) deactivate(
	ctx context.Context,
	links accountlink.Repository,
	botUoW bot.UnitOfWork,
	l accountlink.Link,
) ([]any, error) {
	released, err := releaseLinkedServices(ctx, botUoW, l)
	if err != nil {
		return nil, err
	}
	l.Deactivate()
	if err := links.Update(ctx, l); err != nil {
		return nil, err
	}
	events := l.PullEvents()
	for _, svc := range released {
		events = append(events, svc.PullEvents()...)
	}
	return events, nil
}

func (s *SessionManager) ListLinks(ctx context.Context, q ListLinks) ([]accountlink.Link, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	if _, err := s.access.CheckAccess(ctx, q.UserUID, q.BotUID, bot.RolesAny); err != nil {
		return nil, err
	}
	var out []accountlink.Link
	err := s.links.Do(ctx, func(ctx context.Context, uow accountlink.UnitOfWork) error {
		list, err := uow.Links().FindByBot(ctx, q.BotUID)
		out = list
		return err
	})
	return out, err
}

// ResumeListeners starts a listener for every active link whose telegram
// service is still active. It runs once at boot.
func (s *SessionManager) ResumeListeners(ctx context.Context) (int, error) {
	type target struct {
		link    accountlink.Link
		service bot.Service
	}
	var targets []target
	_, err := s.tx(ctx, func(ctx context.Context, links accountlink.Repository, botUoW bot.UnitOfWork) ([]any, error) {
		active, err := links.FindActive(ctx)
		if err != nil {
			return nil, err
		}
		for _, l := range active {
			services, err := botUoW.Services().FindByBot(ctx, l.BotUID())
			if err != nil {
				return nil, err
			}
			for _, svc := range services {
				if isLinkedTo(svc, l) {
					targets = append(targets, target{link: l, service: svc})
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	logger := composables.UseLogger(ctx)
	for _, t := range targets {
		s.listeners.Start(t.service.UID(), t.link.UID(), t.link.BotUID(), t.link.Session())
	}
	logger.WithField("count", len(targets)).Info("telegram listeners resumed")
	return len(targets), nil
}

func (s *SessionManager) Close() {
	s.listeners.Close()
}

func isLinkedTo(svc bot.Service, l accountlink.Link) bool {
	return svc.Platform() == bot.PlatformTelegram &&
		svc.Status() == bot.ServiceActive &&
		svc.LinkedAccountUID() == l.UID()
}

func releaseLinkedServices(ctx context.Context, botUoW bot.UnitOfWork, l accountlink.Link) ([]bot.Service, error) {
	services, err := botUoW.Services().FindByBot(ctx, l.BotUID())
	if err != nil {
		return nil, err
	}
	released := make([]bot.Service, 0, 1)
	for _, svc := range services {
		if !isLinkedTo(svc, l) {
			continue
		}
		svc.Release()
		if err := botUoW.Services().Update(ctx, svc); err != nil {
			return nil, err
		}
		released = append(released, svc)
	}
	return released, nil
}

func activateReserved(ctx context.Context, botUoW bot.UnitOfWork, l accountlink.Link) (bot.Service, error) {
	svc, err := botUoW.Services().FindReserved(ctx, l.BotUID(), bot.PlatformTelegram)
	if err != nil {
		return nil, err
	}
	details := map[string]string{"phone_number": l.PhoneNumber()}
	if l.Username() != "" {
		details["username"] = l.Username()
	}
	if l.TelegramUserID() != 0 {
		details["telegram_user_id"] = strconv.FormatInt(l.TelegramUserID(), 10)
	}
	if err := svc.Activate(l.UID(), details); err != nil {
		return nil, err
	}
	if err := botUoW.Services().Update(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}
