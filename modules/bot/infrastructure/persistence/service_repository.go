package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/repo"
)

const (
	serviceFindQuery = `
        SELECT s.id, s.bot_id, s.platform, s.status, s.linked_account_id, s.service_details, s.created_at, s.updated_at
        FROM bot_services s`

	serviceUpdateQuery = `
        UPDATE bot_services
        SET status = $1, linked_account_id = $2, service_details = $3, updated_at = $4
        WHERE id = $5`

	serviceDeleteQuery      = `DELETE FROM bot_services WHERE id = $1`
	serviceDeleteByBotQuery = `DELETE FROM bot_services WHERE bot_id = $1`
)

type PgServiceRepository struct{}

func NewServiceRepository() bot.ServiceRepository {
	return &PgServiceRepository{}
}

func (r *PgServiceRepository) Create(ctx context.Context, s bot.Service) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBService(s)
	q := repo.Insert("bot_services", []string{
		"id", "bot_id", "platform", "status", "linked_account_id", "service_details", "created_at", "updated_at",
	})
	if _, err := tx.Exec(ctx, q, m.ID, m.BotID, m.Platform, m.Status, m.LinkedAccountID, m.ServiceDetails, m.CreatedAt, m.UpdatedAt); err != nil {
		if repo.IsUniqueViolation(err) {
			return bot.ErrServiceAlreadyLinked.WithMessage("service %s already exists", m.ID)
		}
		return errors.Wrap(err, "failed to insert service")
	}
	return nil
}

func (r *PgServiceRepository) Update(ctx context.Context, s bot.Service) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBService(s)
	tag, err := tx.Exec(ctx, serviceUpdateQuery, m.Status, m.LinkedAccountID, m.ServiceDetails, m.UpdatedAt, m.ID)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update service %s", m.ID))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrServiceNotFound.WithMessage("service %s not found", m.ID)
	}
	return nil
}

func (r *PgServiceRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Service, error) {
	services, err := r.query(ctx, repo.Join(serviceFindQuery, "WHERE s.id = $1"), uid.String())
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, bot.ErrServiceNotFound.WithMessage("service %s not found", uid)
	}
	return services[0], nil
}

func (r *PgServiceRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Service, error) {
	return r.query(ctx, repo.Join(serviceFindQuery, "WHERE s.bot_id = $1", "ORDER BY s.created_at"), botUID.String())
}

func (r *PgServiceRepository) FindReserved(ctx context.Context, botUID uuid.UUID, platform bot.Platform) (bot.Service, error) {
	services, err := r.query(ctx,
		repo.Join(serviceFindQuery, "WHERE s.bot_id = $1 AND s.platform = $2 AND s.status = $3", "ORDER BY s.created_at LIMIT 1"),
		botUID.String(), string(platform), string(bot.ServiceReserved),
	)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, bot.ErrReservedServiceNotFound.WithMessage("bot %s has no reserved %s service", botUID, platform)
	}
	return services[0], nil
}

func (r *PgServiceRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, serviceDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete service %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrServiceNotFound.WithMessage("service %s not found", uid)
	}
	return nil
}

func (r *PgServiceRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, serviceDeleteByBotQuery, botUID.String()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete services of bot %s", botUID))
	}
	return nil
}

func (r *PgServiceRepository) query(ctx context.Context, query string, args ...interface{}) ([]bot.Service, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query services")
	}
	defer rows.Close()

	out := make([]bot.Service, 0)
	for rows.Next() {
		var m models.BotService
		if err := rows.Scan(&m.ID, &m.BotID, &m.Platform, &m.Status, &m.LinkedAccountID, &m.ServiceDetails, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan service row")
		}
		s, err := ToDomainService(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
