package bot

import (
	"context"

	"github.com/google/uuid"
)

// Repository methods run in the transaction bound to ctx.
type Repository interface {
	Create(ctx context.Context, b Bot) error
	Update(ctx context.Context, b Bot) error
	// ChargeTokens takes n tokens from the stored quota without touching the
	// other columns. It fails with ErrInsufficientTokens when fewer are left.
	ChargeTokens(ctx context.Context, uid uuid.UUID, n int) error
	FindByUID(ctx context.Context, uid uuid.UUID) (Bot, error)
	FindByUIDs(ctx context.Context, uids []uuid.UUID) ([]Bot, error)
	FindByOwner(ctx context.Context, ownerUID uuid.UUID) ([]Bot, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
	DeleteByUIDs(ctx context.Context, uids []uuid.UUID) error
}

type ParticipantRepository interface {
	Create(ctx context.Context, p Participant) error
	Update(ctx context.Context, p Participant) error
	FindByUID(ctx context.Context, uid uuid.UUID) (Participant, error)
	FindByBotAndUser(ctx context.Context, botUID, userUID uuid.UUID) (Participant, error)
	FindByBot(ctx context.Context, botUID uuid.UUID) ([]Participant, error)
	FindByUser(ctx context.Context, userUID uuid.UUID) ([]Participant, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
	DeleteByBot(ctx context.Context, botUID uuid.UUID) error
}

type ServiceRepository interface {
	Create(ctx context.Context, s Service) error
	Update(ctx context.Context, s Service) error
	FindByUID(ctx context.Context, uid uuid.UUID) (Service, error)
	FindByBot(ctx context.Context, botUID uuid.UUID) ([]Service, error)
	FindReserved(ctx context.Context, botUID uuid.UUID, platform Platform) (Service, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
	DeleteByBot(ctx context.Context, botUID uuid.UUID) error
}

type DocumentRepository interface {
	Create(ctx context.Context, d Document) error
	FindByUID(ctx context.Context, uid uuid.UUID) (Document, error)
	FindByBot(ctx context.Context, botUID uuid.UUID) ([]Document, error)
	DeleteByUID(ctx context.Context, uid uuid.UUID) error
	DeleteByBot(ctx context.Context, botUID uuid.UUID) error
}

type UnitOfWork interface {
	Bots() Repository
	Participants() ParticipantRepository
	Services() ServiceRepository
	Documents() DocumentRepository
}

// UnitOfWorkFactory runs fn in one transaction: commit when fn returns nil,
// rollback otherwise. A transaction already bound to ctx is joined.
type UnitOfWorkFactory interface {
	Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
