package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/bothub/modules/core/domain/aggregates/user"
	"github.com/iota-uz/bothub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/bothub/modules/core/services"
	"github.com/iota-uz/bothub/pkg/memstore"
)

func newService() *services.UserService {
	store := memstore.New()
	return services.NewUserService(persistence.NewInmemUserRepository(store), store.InTx)
}

func TestUserService_Ensure(t *testing.T) {
	t.Parallel()
	svc := newService()
	ctx := context.Background()

	first, created, err := svc.Ensure(ctx, "Owner@Example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "owner@example.com", first.Email())

	again, created, err := svc.Ensure(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UID(), again.UID())
}

func TestUserService_GetByEmail(t *testing.T) {
	t.Parallel()
	svc := newService()
	ctx := context.Background()

	_, err := svc.GetByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, user.ErrUserNotFound)

	u, _, err := svc.Ensure(ctx, "viewer@example.com")
	require.NoError(t, err)
	found, err := svc.GetByEmail(ctx, "viewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.UID(), found.UID())
}
