package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence/models"
	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/repo"
)

const (
	userFindQuery = `
        SELECT
            u.id,
            u.email,
            u.avatar_url,
            u.is_verified,
            u.created_at,
            u.updated_at
        FROM users u`
)

type PgUserRepository struct{}

func NewUserRepository() user.Repository {
	return &PgUserRepository{}
}

func (g *PgUserRepository) GetByUID(ctx context.Context, uid uuid.UUID) (user.User, error) {
	users, err := g.queryUsers(ctx, repo.Join(userFindQuery, "WHERE u.id = $1"), uid.String())
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query user with uid: %s", uid))
	}
	if len(users) == 0 {
		return nil, user.ErrUserNotFound.WithMessage("user %s not found", uid)
	}
	return users[0], nil
}

func (g *PgUserRepository) GetByUIDs(ctx context.Context, uids []uuid.UUID) ([]user.User, error) {
	if len(uids) == 0 {
		return []user.User{}, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(uids))
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		ids = append(ids, uid.String())
	}
	users, err := g.queryUsers(ctx, repo.Join(userFindQuery, "WHERE u.id = ANY($1::uuid[])"), ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query users by uids")
	}
	return users, nil
}

func (g *PgUserRepository) FindByEmail(ctx context.Context, email string) (user.User, error) {
	email = user.NormalizeEmail(email)
	users, err := g.queryUsers(ctx, repo.Join(userFindQuery, "WHERE lower(u.email) = $1"), email)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query user with email: %s", email))
	}
	if len(users) == 0 {
		return nil, user.ErrUserNotFound.WithMessage("user with email %s not found", email)
	}
	return users[0], nil
}

func (g *PgUserRepository) Create(ctx context.Context, data user.User) (user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	dbUser := ToDBUser(data)
	q := repo.Insert("users", []string{"id", "email", "avatar_url", "is_verified", "created_at", "updated_at"})
	if _, err := tx.Exec(ctx, q,
		dbUser.ID,
		dbUser.Email,
		dbUser.AvatarURL,
		dbUser.IsVerified,
		dbUser.CreatedAt,
		dbUser.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert user")
	}
	return data, nil
}

func (g *PgUserRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.AvatarURL,
			&u.IsVerified,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan user row")
		}
		domainUser, err := ToDomainUser(u)
		if err != nil {
			return nil, err
		}
		users = append(users, domainUser)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return users, nil
}
