package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseUserID(t *testing.T) {
	t.Parallel()

	_, err := UseUserID(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)

	id := uuid.New()
	got, err := UseUserID(WithUserID(context.Background(), id))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	t.Parallel()

	entry := UseLogger(context.Background())
	require.NotNil(t, entry)
	assert.Same(t, logrus.StandardLogger(), entry.Logger)

	custom := logrus.New().WithField("component", "test")
	assert.Same(t, custom, UseLogger(WithLogger(context.Background(), custom)))
}

func TestUsePool_Missing(t *testing.T) {
	t.Parallel()

	_, err := UsePool(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	_, err = UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	err = InTx(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNoPool)
}
