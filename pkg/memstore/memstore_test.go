package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   string
	Name string
}

func TestStore_CommitOnSuccess(t *testing.T) {
	t.Parallel()
	s := New()

	err := s.InTx(context.Background(), func(ctx context.Context) error {
		tx, ok := UseTx(ctx)
		require.True(t, ok)
		tx.Put("rows", "a", row{ID: "a", Name: "alpha"})
		tx.Put("rows", "b", row{ID: "b", Name: "beta"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len("rows"))

	_ = s.InTx(context.Background(), func(ctx context.Context) error {
		tx, _ := UseTx(ctx)
		got, ok := Get[row](tx, "rows", "a")
		require.True(t, ok)
		assert.Equal(t, "alpha", got.Name)
		all := Filter[row](tx, "rows", nil)
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].ID)
		return nil
	})
}

func TestStore_RollbackOnError(t *testing.T) {
	t.Parallel()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context) error {
		tx, _ := UseTx(ctx)
		tx.Put("rows", "a", row{ID: "a"})
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len("rows"))
}

func TestStore_RollbackOnCancel(t *testing.T) {
	t.Parallel()
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InTx(ctx, func(ctx context.Context) error {
		tx, _ := UseTx(ctx)
		tx.Put("rows", "a", row{ID: "a"})
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len("rows"))
}

func TestStore_NestedJoinsOuter(t *testing.T) {
	t.Parallel()
	s := New()

	err := s.InTx(context.Background(), func(ctx context.Context) error {
		if err := s.InTx(ctx, func(ctx context.Context) error {
			tx, _ := UseTx(ctx)
			tx.Put("rows", "inner", row{ID: "inner"})
			return nil
		}); err != nil {
			return err
		}
		tx, _ := UseTx(ctx)
		_, ok := tx.Get("rows", "inner")
		assert.True(t, ok, "read-your-writes inside the outer transaction")
		assert.Equal(t, 0, s.Len("rows"), "nothing is visible before the outer commit")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len("rows"))
}

func TestStore_SerializesWriters(t *testing.T) {
	t.Parallel()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(context.Background(), func(ctx context.Context) error {
				tx, _ := UseTx(ctx)
				n, _ := Get[int](tx, "counter", "n")
				tx.Put("counter", "n", n+1)
				return nil
			})
		}()
	}
	wg.Wait()

	_ = s.InTx(context.Background(), func(ctx context.Context) error {
		tx, _ := UseTx(ctx)
		n, _ := Get[int](tx, "counter", "n")
		assert.Equal(t, 50, n)
		return nil
	})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	s := New()

	_ = s.InTx(context.Background(), func(ctx context.Context) error {
		tx, _ := UseTx(ctx)
		tx.Put("rows", "a", row{ID: "a"})
		assert.True(t, tx.Delete("rows", "a"))
		assert.False(t, tx.Delete("rows", "a"))
		return nil
	})
	assert.Equal(t, 0, s.Len("rows"))
}
