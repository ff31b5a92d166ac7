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
	participantFindQuery = `
        SELECT p.id, p.bot_id, p.user_id, p.role, p.created_at, p.updated_at
        FROM bot_participants p`

	participantUpdateQuery      = `UPDATE bot_participants SET role = $1, updated_at = $2 WHERE id = $3`
	participantDeleteQuery      = `DELETE FROM bot_participants WHERE id = $1`
	participantDeleteByBotQuery = `DELETE FROM bot_participants WHERE bot_id = $1`
)

type PgParticipantRepository struct{}

func NewParticipantRepository() bot.ParticipantRepository {
	return &PgParticipantRepository{}
}

func (r *PgParticipantRepository) Create(ctx context.Context, p bot.Participant) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBParticipant(p)
	q := repo.Insert("bot_participants", []string{"id", "bot_id", "user_id", "role", "created_at", "updated_at"})
	if _, err := tx.Exec(ctx, q, m.ID, m.BotID, m.UserID, m.Role, m.CreatedAt, m.UpdatedAt); err != nil {
		if repo.IsUniqueViolation(err) {
			return bot.ErrParticipantAlreadyExists.WithMessage("user %s already participates in bot %s", p.UserUID(), p.BotUID())
		}
		return errors.Wrap(err, "failed to insert participant")
	}
	return nil
}

func (r *PgParticipantRepository) Update(ctx context.Context, p bot.Participant) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBParticipant(p)
	tag, err := tx.Exec(ctx, participantUpdateQuery, m.Role, m.UpdatedAt, m.ID)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update participant %s", m.ID))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrParticipantNotFound.WithMessage("participant %s not found", m.ID)
	}
	return nil
}

func (r *PgParticipantRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Participant, error) {
	return r.one(ctx, repo.Join(participantFindQuery, "WHERE p.id = $1"), uid.String())
}

func (r *PgParticipantRepository) FindByBotAndUser(ctx context.Context, botUID, userUID uuid.UUID) (bot.Participant, error) {
	return r.one(ctx, repo.Join(participantFindQuery, "WHERE p.bot_id = $1 AND p.user_id = $2"), botUID.String(), userUID.String())
}

func (r *PgParticipantRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Participant, error) {
	return r.query(ctx, repo.Join(participantFindQuery, "WHERE p.bot_id = $1", "ORDER BY p.created_at"), botUID.String())
}

func (r *PgParticipantRepository) FindByUser(ctx context.Context, userUID uuid.UUID) ([]bot.Participant, error) {
	return r.query(ctx, repo.Join(participantFindQuery, "WHERE p.user_id = $1", "ORDER BY p.created_at"), userUID.String())
}

func (r *PgParticipantRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, participantDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete participant %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrParticipantNotFound.WithMessage("participant %s not found", uid)
	}
	return nil
}

func (r *PgParticipantRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, participantDeleteByBotQuery, botUID.String()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete participants of bot %s", botUID))
	}
	return nil
}

func (r *PgParticipantRepository) one(ctx context.Context, query string, args ...interface{}) (bot.Participant, error) {
	ps, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, bot.ErrParticipantNotFound
	}
	return ps[0], nil
}

func (r *PgParticipantRepository) query(ctx context.Context, query string, args ...interface{}) ([]bot.Participant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query participants")
	}
	defer rows.Close()

	out := make([]bot.Participant, 0)
	for rows.Next() {
		var m models.BotParticipant
		if err := rows.Scan(&m.ID, &m.BotID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan participant row")
		}
		p, err := ToDomainParticipant(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
