package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/memstore"
)

const (
	botsTable         = "bots"
	participantsTable = "bot_participants"
	servicesTable     = "bot_services"
	documentsTable    = "bot_documents"
)

// inTx runs fn against the memstore transaction bound to ctx, opening one when absent.
func inTx(ctx context.Context, store *memstore.Store, fn func(tx *memstore.Tx) error) error {
	return store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		return fn(tx)
	})
}

func byCreatedAt[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).Before(createdAt(items[j]))
	})
}

type InmemBotRepository struct {
	store *memstore.Store
}

func NewInmemBotRepository(store *memstore.Store) *InmemBotRepository {
	return &InmemBotRepository{store: store}
}

func (r *InmemBotRepository) Create(ctx context.Context, b bot.Bot) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(botsTable, b.UID().String()); ok {
			return bot.ErrBotAlreadyExists.WithMessage("bot %s already exists", b.UID())
		}
		tx.Put(botsTable, b.UID().String(), ToDBBot(b))
		return nil
	})
}

func (r *InmemBotRepository) Update(ctx context.Context, b bot.Bot) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(botsTable, b.UID().String()); !ok {
			return bot.ErrBotNotFound.WithMessage("bot %s not found", b.UID())
		}
		tx.Put(botsTable, b.UID().String(), ToDBBot(b))
		return nil
	})
}

func (r *InmemBotRepository) ChargeTokens(ctx context.Context, uid uuid.UUID, n int) error {
	if n < 0 {
		return bot.ErrInvalidQuota.WithMessage("cannot deduct a negative amount %d", n)
	}
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		m, ok := memstore.Get[models.Bot](tx, botsTable, uid.String())
		if !ok {
			return bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
		}
		if m.TokensLeft < n {
			return bot.ErrInsufficientTokens.WithMessage("requested %d tokens, %d left", n, m.TokensLeft)
		}
		if n == 0 {
			return nil
		}
		m.TokensLeft -= n
		m.UpdatedAt = time.Now().UTC()
		tx.Put(botsTable, uid.String(), m)
		return nil
	})
}

func (r *InmemBotRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Bot, error) {
	var out bot.Bot
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		m, ok := memstore.Get[models.Bot](tx, botsTable, uid.String())
		if !ok {
			return bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
		}
		b, err := ToDomainBot(m)
		out = b
		return err
	})
	return out, err
}

func (r *InmemBotRepository) FindByUIDs(ctx context.Context, uids []uuid.UUID) ([]bot.Bot, error) {
	wanted := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		wanted[uid.String()] = struct{}{}
	}
	return r.filter(ctx, func(m models.Bot) bool {
		_, ok := wanted[m.ID]
		return ok
	})
}

func (r *InmemBotRepository) FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]bot.Bot, error) {
	owner := ownerUID.String()
	return r.filter(ctx, func(m models.Bot) bool { return m.OwnerID == owner })
}

func (r *InmemBotRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if !tx.Delete(botsTable, uid.String()) {
			return bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
		}
		return nil
	})
}

func (r *InmemBotRepository) DeleteByUIDs(ctx context.Context, uids []uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, uid := range uids {
			tx.Delete(botsTable, uid.String())
		}
		return nil
	})
}

func (r *InmemBotRepository) filter(ctx context.Context, keep func(models.Bot) bool) ([]bot.Bot, error) {
	out := make([]bot.Bot, 0)
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, botsTable, keep) {
			b, err := ToDomainBot(m)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	byCreatedAt(out, bot.Bot.CreatedAt)
	return out, err
}

type InmemParticipantRepository struct {
	store *memstore.Store
}

func NewInmemParticipantRepository(store *memstore.Store) *InmemParticipantRepository {
	return &InmemParticipantRepository{store: store}
}

func (r *InmemParticipantRepository) Create(ctx context.Context, p bot.Participant) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		botID, userID := p.BotUID().String(), p.UserUID().String()
		dup := memstore.Filter(tx, participantsTable, func(m models.BotParticipant) bool {
			return m.BotID == botID && m.UserID == userID
		})
		if len(dup) > 0 {
			return bot.ErrParticipantAlreadyExists.WithMessage("user %s already participates in bot %s", userID, botID)
		}
		tx.Put(participantsTable, p.UID().String(), ToDBParticipant(p))
		return nil
	})
}

func (r *InmemParticipantRepository) Update(ctx context.Context, p bot.Participant) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(participantsTable, p.UID().String()); !ok {
			return bot.ErrParticipantNotFound.WithMessage("participant %s not found", p.UID())
		}
		tx.Put(participantsTable, p.UID().String(), ToDBParticipant(p))
		return nil
	})
}

func (r *InmemParticipantRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Participant, error) {
	id := uid.String()
	return r.one(ctx, func(m models.BotParticipant) bool { return m.ID == id })
}

func (r *InmemParticipantRepository) FindByBotAndUser(ctx context.Context, botUID, userUID uuid.UUID) (bot.Participant, error) {
	botID, userID := botUID.String(), userUID.String()
	return r.one(ctx, func(m models.BotParticipant) bool { return m.BotID == botID && m.UserID == userID })
}

func (r *InmemParticipantRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Participant, error) {
	botID := botUID.String()
	return r.filter(ctx, func(m models.BotParticipant) bool { return m.BotID == botID })
}

func (r *InmemParticipantRepository) FindByUser(ctx context.Context, userUID uuid.UUID) ([]bot.Participant, error) {
	userID := userUID.String()
	return r.filter(ctx, func(m models.BotParticipant) bool { return m.UserID == userID })
}

func (r *InmemParticipantRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if !tx.Delete(participantsTable, uid.String()) {
			return bot.ErrParticipantNotFound.WithMessage("participant %s not found", uid)
		}
		return nil
	})
}

func (r *InmemParticipantRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	botID := botUID.String()
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, participantsTable, func(m models.BotParticipant) bool { return m.BotID == botID }) {
			tx.Delete(participantsTable, m.ID)
		}
		return nil
	})
}

func (r *InmemParticipantRepository) one(ctx context.Context, keep func(models.BotParticipant) bool) (bot.Participant, error) {
	ps, err := r.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, bot.ErrParticipantNotFound
	}
	return ps[0], nil
}

func (r *InmemParticipantRepository) filter(ctx context.Context, keep func(models.BotParticipant) bool) ([]bot.Participant, error) {
	out := make([]bot.Participant, 0)
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, participantsTable, keep) {
			p, err := ToDomainParticipant(m)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	byCreatedAt(out, bot.Participant.CreatedAt)
	return out, err
}

type InmemServiceRepository struct {
	store *memstore.Store
}

func NewInmemServiceRepository(store *memstore.Store) *InmemServiceRepository {
	return &InmemServiceRepository{store: store}
}

func (r *InmemServiceRepository) Create(ctx context.Context, s bot.Service) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(servicesTable, s.UID().String()); ok {
			return bot.ErrServiceAlreadyLinked.WithMessage("service %s already exists", s.UID())
		}
		tx.Put(servicesTable, s.UID().String(), ToDBService(s))
		return nil
	})
}

func (r *InmemServiceRepository) Update(ctx context.Context, s bot.Service) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if _, ok := tx.Get(servicesTable, s.UID().String()); !ok {
			return bot.ErrServiceNotFound.WithMessage("service %s not found", s.UID())
		}
		tx.Put(servicesTable, s.UID().String(), ToDBService(s))
		return nil
	})
}

func (r *InmemServiceRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Service, error) {
	var out bot.Service
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		m, ok := memstore.Get[models.BotService](tx, servicesTable, uid.String())
		if !ok {
			return bot.ErrServiceNotFound.WithMessage("service %s not found", uid)
		}
		s, err := ToDomainService(m)
		out = s
		return err
	})
	return out, err
}

func (r *InmemServiceRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Service, error) {
	botID := botUID.String()
	return r.filter(ctx, func(m models.BotService) bool { return m.BotID == botID })
}

func (r *InmemServiceRepository) FindReserved(ctx context.Context, botUID uuid.UUID, platform bot.Platform) (bot.Service, error) {
	botID := botUID.String()
	services, err := r.filter(ctx, func(m models.BotService) bool {
		return m.BotID == botID && m.Platform == string(platform) && m.Status == string(bot.ServiceReserved)
	})
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, bot.ErrReservedServiceNotFound.WithMessage("bot %s has no reserved %s service", botUID, platform)
	}
	return services[0], nil
}

func (r *InmemServiceRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if !tx.Delete(servicesTable, uid.String()) {
			return bot.ErrServiceNotFound.WithMessage("service %s not found", uid)
		}
		return nil
	})
}

func (r *InmemServiceRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	botID := botUID.String()
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, servicesTable, func(m models.BotService) bool { return m.BotID == botID }) {
			tx.Delete(servicesTable, m.ID)
		}
		return nil
	})
}

func (r *InmemServiceRepository) filter(ctx context.Context, keep func(models.BotService) bool) ([]bot.Service, error) {
	out := make([]bot.Service, 0)
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, servicesTable, keep) {
			s, err := ToDomainService(m)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	byCreatedAt(out, bot.Service.CreatedAt)
	return out, err
}

type InmemDocumentRepository struct {
	store *memstore.Store
}

func NewInmemDocumentRepository(store *memstore.Store) *InmemDocumentRepository {
	return &InmemDocumentRepository{store: store}
}

func (r *InmemDocumentRepository) Create(ctx context.Context, d bot.Document) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		tx.Put(documentsTable, d.UID().String(), ToDBDocument(d))
		return nil
	})
}

func (r *InmemDocumentRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Document, error) {
	var out bot.Document
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		m, ok := memstore.Get[models.BotDocument](tx, documentsTable, uid.String())
		if !ok {
			return bot.ErrDocumentNotFound.WithMessage("document %s not found", uid)
		}
		d, err := ToDomainDocument(m)
		out = d
		return err
	})
	return out, err
}

func (r *InmemDocumentRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Document, error) {
	botID := botUID.String()
	out := make([]bot.Document, 0)
	err := inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, documentsTable, func(m models.BotDocument) bool { return m.BotID == botID }) {
			d, err := ToDomainDocument(m)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	byCreatedAt(out, bot.Document.CreatedAt)
	return out, err
}

func (r *InmemDocumentRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		if !tx.Delete(documentsTable, uid.String()) {
			return bot.ErrDocumentNotFound.WithMessage("document %s not found", uid)
		}
		return nil
	})
}

func (r *InmemDocumentRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	botID := botUID.String()
	return inTx(ctx, r.store, func(tx *memstore.Tx) error {
		for _, m := range memstore.Filter(tx, documentsTable, func(m models.BotDocument) bool { return m.BotID == botID }) {
			tx.Delete(documentsTable, m.ID)
		}
		return nil
	})
}
