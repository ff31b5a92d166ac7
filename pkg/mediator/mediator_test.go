package mediator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greet struct{ name string }

type greetHandler struct{ prefix string }

func (h *greetHandler) Handle(_ context.Context, cmd greet) (string, error) {
	return h.prefix + cmd.name, nil
}

type countQuery struct{}

type countHandler struct{ n int }

func (h countHandler) Handle(context.Context, countQuery) (int, error) {
	return h.n, nil
}

type pinged struct{ id int }

func quietLogger() (*logrus.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(logrus.WarnLevel)
	return log, buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMediator_Execute(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	require.NoError(t, RegisterCommand(m, func() CommandHandler[greet, string] {
		return &greetHandler{prefix: "hi "}
	}))

	out, err := Execute[string](context.Background(), m, greet{name: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", out)
}

func TestMediator_RegisterTwiceFails(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	factory := func() CommandHandler[greet, string] { return &greetHandler{} }
	require.NoError(t, RegisterCommand(m, factory))
	require.ErrorIs(t, RegisterCommand(m, factory), ErrAlreadyRegistered)

	qf := func() QueryHandler[countQuery, int] { return countHandler{n: 1} }
	require.NoError(t, RegisterQuery(m, qf))
	require.ErrorIs(t, RegisterQuery(m, qf), ErrAlreadyRegistered)
}

func TestMediator_NoHandler(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	_, err := Execute[string](context.Background(), m, greet{})
	require.ErrorIs(t, err, ErrNoHandler)

	_, err = Query[int](context.Background(), m, countQuery{})
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestMediator_Query(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)
	require.NoError(t, RegisterQuery(m, func() QueryHandler[countQuery, int] {
		return countHandler{n: 7}
	}))

	n, err := Query[int](context.Background(), m, countQuery{})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Query[string](context.Background(), m, countQuery{})
	require.ErrorIs(t, err, ErrInvalidResult)
}

func TestMediator_Frozen(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)
	m.Freeze()

	err := RegisterCommand(m, func() CommandHandler[greet, string] { return &greetHandler{} })
	require.ErrorIs(t, err, ErrFrozen)
	err = RegisterEvents(m, func() EventHandler[pinged] {
		return EventHandlerFunc[pinged](func(context.Context, pinged) error { return nil })
	})
	require.ErrorIs(t, err, ErrFrozen)
}

func TestMediator_PublishFansOut(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	var calls atomic.Int32
	var seen sync.Map
	handler := func() EventHandler[pinged] {
		return EventHandlerFunc[pinged](func(_ context.Context, e pinged) error {
			calls.Add(1)
			seen.Store(e.id, true)
			return nil
		})
	}
	require.NoError(t, RegisterEvents(m, handler, handler))
	assert.Equal(t, 2, m.EventHandlersCount(pinged{}))

	m.Publish(context.Background(), pinged{id: 1}, pinged{id: 2})
	m.Wait()

	assert.Equal(t, int32(4), calls.Load())
	_, ok1 := seen.Load(1)
	_, ok2 := seen.Load(2)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestMediator_PublishSurvivesFailingHandlers(t *testing.T) {
	t.Parallel()
	log, buf := quietLogger()
	m := New(log)

	var ok atomic.Bool
	require.NoError(t, RegisterEvents(m,
		func() EventHandler[pinged] {
			return EventHandlerFunc[pinged](func(context.Context, pinged) error {
				return errors.New("smtp down")
			})
		},
		func() EventHandler[pinged] {
			return EventHandlerFunc[pinged](func(context.Context, pinged) error {
				panic("boom")
			})
		},
		func() EventHandler[pinged] {
			return EventHandlerFunc[pinged](func(context.Context, pinged) error {
				ok.Store(true)
				return nil
			})
		},
	))

	m.Publish(context.Background(), pinged{id: 1})
	m.Wait()

	assert.True(t, ok.Load())
	out := buf.String()
	assert.Contains(t, out, "smtp down")
	assert.Contains(t, out, "panicked")
}

func TestMediator_PublishDetachedFromCancellation(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	release := make(chan struct{})
	var ctxErr atomic.Value
	require.NoError(t, RegisterEvents(m, func() EventHandler[pinged] {
		return EventHandlerFunc[pinged](func(ctx context.Context, _ pinged) error {
			<-release
			if err := ctx.Err(); err != nil {
				ctxErr.Store(err)
			}
			return nil
		})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	m.Publish(ctx, pinged{})
	cancel()
	close(release)
	m.Wait()

	assert.Nil(t, ctxErr.Load())
}

func TestMediator_PublishWithoutHandlersLogs(t *testing.T) {
	t.Parallel()
	log, buf := quietLogger()
	m := New(log)

	m.Publish(context.Background(), pinged{})
	m.Wait()

	assert.True(t, strings.Contains(buf.String(), "no matching handlers"))
}

func TestMediator_WaitWhilePublishing(t *testing.T) {
	t.Parallel()
	log, _ := quietLogger()
	m := New(log)

	var calls atomic.Int32
	require.NoError(t, RegisterEvents(m, func() EventHandler[pinged] {
		return EventHandlerFunc[pinged](func(ctx context.Context, e pinged) error {
			calls.Add(1)
			if e.id < 3 {
				m.Publish(ctx, pinged{id: e.id + 1})
			}
			return nil
		})
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Publish(context.Background(), pinged{id: 1})
		}()
		go func() {
			defer wg.Done()
			m.Wait()
		}()
	}
	wg.Wait()
	m.Wait()

	// Each publish chains through ids 1, 2 and 3.
	assert.Equal(t, int32(24), calls.Load())
}
