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
	documentFindQuery = `
        SELECT d.id, d.bot_id, d.filename, d.content_type, d.file_blob, d.created_at, d.updated_at
        FROM bot_documents d`

	documentDeleteQuery      = `DELETE FROM bot_documents WHERE id = $1`
	documentDeleteByBotQuery = `DELETE FROM bot_documents WHERE bot_id = $1`
)

type PgDocumentRepository struct{}

func NewDocumentRepository() bot.DocumentRepository {
	return &PgDocumentRepository{}
}

func (r *PgDocumentRepository) Create(ctx context.Context, d bot.Document) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	m := ToDBDocument(d)
	q := repo.Insert("bot_documents", []string{"id", "bot_id", "filename", "content_type", "file_blob", "created_at", "updated_at"})
	if _, err := tx.Exec(ctx, q, m.ID, m.BotID, m.Filename, m.ContentType, m.FileBlob, m.CreatedAt, m.UpdatedAt); err != nil {
		return errors.Wrap(err, "failed to insert document")
	}
	return nil
}

func (r *PgDocumentRepository) FindByUID(ctx context.Context, uid uuid.UUID) (bot.Document, error) {
	docs, err := r.query(ctx, repo.Join(documentFindQuery, "WHERE d.id = $1"), uid.String())
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, bot.ErrDocumentNotFound.WithMessage("document %s not found", uid)
	}
	return docs[0], nil
}

func (r *PgDocumentRepository) FindByBot(ctx context.Context, botUID uuid.UUID) ([]bot.Document, error) {
	return r.query(ctx, repo.Join(documentFindQuery, "WHERE d.bot_id = $1", "ORDER BY d.created_at"), botUID.String())
}

func (r *PgDocumentRepository) DeleteByUID(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	tag, err := tx.Exec(ctx, documentDeleteQuery, uid.String())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete document %s", uid))
	}
	if tag.RowsAffected() == 0 {
		return bot.ErrDocumentNotFound.WithMessage("document %s not found", uid)
	}
	return nil
}

func (r *PgDocumentRepository) DeleteByBot(ctx context.Context, botUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, documentDeleteByBotQuery, botUID.String()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete documents of bot %s", botUID))
	}
	return nil
}

func (r *PgDocumentRepository) query(ctx context.Context, query string, args ...interface{}) ([]bot.Document, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	out := make([]bot.Document, 0)
	for rows.Next() {
		var m models.BotDocument
		if err := rows.Scan(&m.ID, &m.BotID, &m.Filename, &m.ContentType, &m.FileBlob, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan document row")
		}
		d, err := ToDomainDocument(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
