package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/repo"
)

const (
	botFindQuery = `
        SELECT
            b.id,
            b.owner_id,
            b.bot_type,
            b.name,
            b.status,
            b.tariff,
            b.auto_deduction,
            b.crm_lead_id,
            b.instructions,
            b.temperature,
            b.top_p,
            b.top_k,
            b.max_response,
            b.repetition_penalty,
            b.generation_model,
            b.token_limit,
            b.tokens_left,
            b.created_at,
            b.updated_at
        FROM bots b`

	botChargeQuery = `
        UPDATE bots
        SET tokens_left = tokens_left - $1, updated_at = $2
        WHERE id = $3 AND tokens_left >= $1
        RETURNING tokens_left`
	botTokensLeftQuery = `SELECT tokens_left FROM bots WHERE id = $1`

	botDeleteQuery     = `DELETE FROM bots WHERE id = $1`
	botDeleteManyQuery = `DELETE FROM bots WHERE id = ANY($1::uuid[])`
)

var botFields = []string{
	"id",
	"owner_id",
	"bot_type",
	"name",
	"status",
	"tariff",
	"auto_deduction",
	"crm_lead_id",
	"instructions",
	"temperature",
	"top_p",
	"top_k",
	"max_response",
	"repetition_penalty",
	"generation_model",
	"token_limit",
	"tokens_left",
	"created_at",
	"updated_at",
}

type PgBotRepository struct{}

func NewBotRepository() bot.Repository {
	return &PgBotRepository{}
}

func botValues(m models.Bot) []interface{} {
	return []interface{}{
		m.ID,
		m.OwnerID,
		m.BotType,
		m.Name,
		m.Status,
		m.Tariff,
		m.AutoDeduction,
		m.CRMLeadID,
		m.Instructions,
		m.Temperature,
		m.TopP,
		m.TopK,
		m.MaxResponse,
		m.RepetitionPenalty,
		m.GenerationModel,
		m.TokenLimit,
		m.TokensLeft,
		m.CreatedAt,
		m.UpdatedAt,
	}
}

func (r *PgBotRepository) Create(ctx context.Context, b bot.Bot) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, repo.Insert("bots", botFields), botValues(ToDBBot(b))...); err != nil {
		if repo.IsUniqueViolation(err) {
			return bot.ErrBotAlreadyExists.WithMessage("bot %s already exists", b.UID())
		}
		return errors.Wrap(err, "failed to insert bot")
	}
	return nil
}

func (r *PgBotRepository) Update(ctx context.Context, b bot.Bot) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	fields := botFields[1:]
	values := botValues(ToDBBot(b))
	args := append(values[1:], values[0])
	q := repo.Update("bots", fields, fmt.Sprintf("id = $%d", len(fields)+1))
	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update bot %s", b.UID()))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrBotNotFound.WithMessage("bot %s not found", b.UID())
	}
	return nil
}

func (r *PgBotRepository) ChargeTokens(ctx context.Context, uid uuid.UUID, n int) error {
	if n < 0 {
		return bot.ErrInvalidQuota.WithMessage("cannot deduct a negative amount %d", n)
	}
	if n == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	var left int
	err = tx.QueryRow(ctx, botChargeQuery, n, time.Now().UTC(), uid.String()).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, fmt.Sprintf("failed to charge bot %s", uid))
	}
	if err := tx.QueryRow(ctx, botTokensLeftQuery, uid.String()).Scan(&left); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
		}
		return errors.Wrap(err, fmt.Sprintf("failed to read quota of bot %s", uid))
	}
	return bot.ErrInsufficientTokens.WithMessage("requested %d tokens, %d left", n, left)
}

func (r *PgBotRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Bot, error) {
	bots, err := r.queryBots(ctx, repo.Join(botFindQuery, "WHERE b.id = $1"), uid.String())
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query bot with uid: %s", uid))
	}
	if len(bots) == 0 {
		return nil, bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
	}
	return bots[0], nil
}

func (r *PgBotRepository) FindByUIDs(ctx context.Context, uids []uuid.UUID) ([]bot.Bot, error) {
	if len(uids) == 0 {
		return []bot.Bot{}, nil
	}
	bots, err := r.queryBots(ctx, repo.Join(botFindQuery, "WHERE b.id = ANY($1::uuid[])", "ORDER BY b.created_at"), uniqueStrings(uids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bots by uids")
	}
	return bots, nil
}

func (r *PgBotRepository) FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]bot.Bot, error) {
	bots, err := r.queryBots(ctx, repo.Join(botFindQuery, "WHERE b.owner_id = $1", "ORDER BY b.created_at"), ownerUID.String())
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query bots of owner %s", ownerUID))
	}
	return bots, nil
}

func (r *PgBotRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, botDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete bot %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrBotNotFound.WithMessage("bot %s not found", uid)
	}
	return nil
}

func (r *PgBotRepository) DeleteByUIDs(ctx context.Context, uids []uuid.UUID) error {
	if len(uids) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, botDeleteManyQuery, uniqueStrings(uids)); err != nil {
		return errors.Wrap(err, "failed to delete bots")
	}
	return nil
}

func (r *PgBotRepository) queryBots(ctx context.Context, query string, args ...interface{}) ([]bot.Bot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	bots := make([]bot.Bot, 0)
	for rows.Next() {
		var m models.Bot
		if err := rows.Scan(
			&m.ID,
			&m.OwnerID,
			&m.BotType,
			&m.Name,
			&m.Status,
			&m.Tariff,
			&m.AutoDeduction,
			&m.CRMLeadID,
			&m.Instructions,
			&m.Temperature,
			&m.TopP,
			&m.TopK,
			&m.MaxResponse,
			&m.RepetitionPenalty,
			&m.GenerationModel,
			&m.TokenLimit,
			&m.TokensLeft,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan bot row")
		}
		b, err := ToDomainBot(m)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return bots, nil
}

func uniqueStrings(uids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(uids))
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid.String())
	}
	return out
}
