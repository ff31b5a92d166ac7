package persistence

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/memstore"
)

const linksTable = "telegram_account_links"

type InmemLinkRepository struct {
	store *memstore.Store
}

func NewInmemLinkRepository(store *memstore.Store) *InmemLinkRepository {
	return &InmemLinkRepository{store: store}
}

func (r *InmemLinkRepository) Create(ctx context.Context, l accountlink.Link) error {
	m := ToDBLink(l)
	return r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		if _, ok := tx.Get(linksTable, m.ID); ok {
			return accountlink.ErrLinkAlreadyExists.WithMessage("link %s already exists", m.ID)
		}
		taken := memstore.Filter(tx, linksTable, func(existing models.AccountLink) bool {
			return existing.PhoneNumber == m.PhoneNumber
		})
		if len(taken) > 0 {
			return accountlink.ErrLinkAlreadyExists.WithMessage("phone %s is already linked", m.PhoneNumber)
		}
		tx.Put(linksTable, m.ID, m)
		return nil
	})
}

func (r *InmemLinkRepository) Update(ctx context.Context, l accountlink.Link) error {
	m := ToDBLink(l)
	return r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		if _, ok := tx.Get(linksTable, m.ID); !ok {
			return accountlink.ErrLinkNotFound.WithMessage("link %s not found", m.ID)
		}
		tx.Put(linksTable, m.ID, m)
		return nil
	})
}

func (r *InmemLinkRepository) FindByUID(ctx context.Context, uid uuid.UUID) (accountlink.Link, error) {
	id := uid.String()
	return r.one(ctx, func(m models.AccountLink) bool { return m.ID == id })
}

func (r *InmemLinkRepository) FindByPhone(ctx context.Context, phone string) (accountlink.Link, error) {
	return r.one(ctx, func(m models.AccountLink) bool { return m.PhoneNumber == phone })
}

func (r *InmemLinkRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]accountlink.Link, error) {
	id := botUID.String()
	return r.filter(ctx, func(m models.AccountLink) bool { return m.BotID == id })
}

func (r *InmemLinkRepository) FindActive(ctx context.Context) ([]accountlink.Link, error) {
	return r.filter(ctx, func(m models.AccountLink) bool { return m.IsActive && len(m.SessionMaterial) > 0 })
}

func (r *InmemLinkRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		if !tx.Delete(linksTable, uid.String()) {
			return accountlink.ErrLinkNotFound.WithMessage("link %s not found", uid)
		}
		return nil
	})
}

func (r *InmemLinkRepository) one(ctx context.Context, keep func(models.AccountLink) bool) (accountlink.Link, error) {
	links, err := r.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, accountlink.ErrLinkNotFound
	}
	return links[0], nil
}

func (r *InmemLinkRepository) filter(ctx context.Context, keep func(models.AccountLink) bool) ([]accountlink.Link, error) {
	var rows []models.AccountLink
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		tx, _ := memstore.UseTx(ctx)
		rows = memstore.Filter(tx, linksTable, keep)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	out := make([]accountlink.Link, 0, len(rows))
	for _, m := range rows {
		l, err := ToDomainLink(m)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
