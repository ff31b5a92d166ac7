package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/modules/telegram/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/repo"
)

const (
	linkFindQuery = `
        SELECT
            l.id,
            l.bot_id,
            l.linker_user_id,
            l.phone_number,
            l.telegram_user_id,
            l.username,
            l.session_material,
            l.phone_code_hash,
            l.is_active,
            l.last_connected_at,
            l.created_at,
            l.updated_at
        FROM telegram_account_links l`

	linkDeleteQuery = `DELETE FROM telegram_account_links WHERE id = $1`
)

var linkUpdateFields = []string{
	"bot_id", "linker_user_id", "telegram_user_id", "username", "session_material",
	"phone_code_hash", "is_active", "last_connected_at", "updated_at",
}

type PgLinkRepository struct{}

func NewLinkRepository() accountlink.Repository {
	return &PgLinkRepository{}
}

func (r *PgLinkRepository) Create(ctx context.Context, l accountlink.Link) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBLink(l)
	q := repo.Insert("telegram_account_links", append([]string{"id", "phone_number", "created_at"}, linkUpdateFields...))
	if _, err := tx.Exec(ctx, q,
		m.ID, m.PhoneNumber, m.CreatedAt,
		m.BotID, m.LinkerUserID, m.TelegramUserID, m.Username, m.SessionMaterial,
		m.PhoneCodeHash, m.IsActive, m.LastConnectedAt, m.UpdatedAt,
	); err != nil {
		if repo.IsUniqueViolation(err) {
			return accountlink.ErrLinkAlreadyExists.WithMessage("phone %s is already linked", m.PhoneNumber)
		}
		return errors.Wrap(err, "failed to insert telegram account link")
	}
	return nil
}

func (r *PgLinkRepository) Update(ctx context.Context, l accountlink.Link) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBLink(l)
	q := repo.Update("telegram_account_links", linkUpdateFields, fmt.Sprintf("id = $%d", len(linkUpdateFields)+1))
	tag, err := tx.Exec(ctx, q,
		m.BotID, m.LinkerUserID, m.TelegramUserID, m.Username, m.SessionMaterial,
		m.PhoneCodeHash, m.IsActive, m.LastConnectedAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update telegram account link %s", m.ID))
	}
	if tag.RowsAffected() == 0 {
		return accountlink.ErrLinkNotFound.WithMessage("link %s not found", m.ID)
	}
	return nil
}

func (r *PgLinkRepository) FindByUID(ctx context.Context, uid uuid.UUID) (accountlink.Link, error) {
	return r.one(ctx, repo.Join(linkFindQuery, "WHERE l.id = $1"), uid.String())
}

func (r *PgLinkRepository) FindByPhone(ctx context.Context, phone string) (accountlink.Link, error) {
	return r.one(ctx, repo.Join(linkFindQuery, "WHERE l.phone_number = $1"), phone)
}

func (r *PgLinkRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]accountlink.Link, error) {
	return r.query(ctx, repo.Join(linkFindQuery, "WHERE l.bot_id = $1", "ORDER BY l.created_at"), botUID.String())
}

func (r *PgLinkRepository) FindActive(ctx context.Context) ([]accountlink.Link, error) {
	return r.query(ctx, repo.Join(linkFindQuery, "WHERE l.is_active AND l.session_material IS NOT NULL", "ORDER BY l.created_at"))
}

func (r *PgLinkRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, linkDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete telegram account link %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return accountlink.ErrLinkNotFound.WithMessage("link %s not found", uid)
	}
	return nil
}

func (r *PgLinkRepository) one(ctx context.Context, query string, args ...interface{}) (accountlink.Link, error) {
	links, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, accountlink.ErrLinkNotFound
	}
	return links[0], nil
}

func (r *PgLinkRepository) query(ctx context.Context, query string, args ...interface{}) ([]accountlink.Link, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query telegram account links")
	}
	defer rows.Close()

	links := make([]accountlink.Link, 0)
	for rows.Next() {
		var m models.AccountLink
		if err := rows.Scan(
			&m.ID,
			&m.BotID,
			&m.LinkerUserID,
			&m.PhoneNumber,
			&m.TelegramUserID,
			&m.Username,
			&m.SessionMaterial,
			&m.PhoneCodeHash,
			&m.IsActive,
			&m.LastConnectedAt,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan telegram account link")
		}
		l, err := ToDomainLink(m)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
