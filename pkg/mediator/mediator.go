// Package mediator dispatches commands, queries and events to handlers
// registered at startup. Commands and queries have exactly one handler per
// message type; events may have any number of handlers, each run as a
// detached goroutine.
package mediator

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/bothub/pkg/metrics"
	"github.com/iota-uz/bothub/pkg/serrors"
)

var (
	ErrAlreadyRegistered = serrors.Conflict("MEDIATOR_ALREADY_REGISTERED", "handler already registered")
	ErrNoHandler         = serrors.Processing("MEDIATOR_NO_HANDLER", "no handler registered")
	ErrFrozen            = serrors.Processing("MEDIATOR_FROZEN", "registry is frozen")
	ErrInvalidResult     = serrors.Processing("MEDIATOR_INVALID_RESULT", "handler returned unexpected result type")
)

var tracer = otel.Tracer("bothub/mediator")

type CommandHandler[C any, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

type QueryHandler[Q any, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

type EventHandler[E any] interface {
	Handle(ctx context.Context, event E) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc[E any] func(ctx context.Context, event E) error

func (f EventHandlerFunc[E]) Handle(ctx context.Context, event E) error {
	return f(ctx, event)
}

type invokeFunc func(ctx context.Context, msg any) (any, error)
type notifyFunc func(ctx context.Context, event any) error

type Mediator struct {
	mu       sync.RWMutex
	frozen   bool
	commands map[reflect.Type]func() invokeFunc
	queries  map[reflect.Type]func() invokeFunc
	events   map[reflect.Type][]func() notifyFunc

	// pending counts running event handlers; idle is signalled when it
	// drops to zero.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int

	logger  *logrus.Entry
	metrics *metrics.Collectors
}

func New(logger *logrus.Logger) *Mediator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Mediator{
		commands: make(map[reflect.Type]func() invokeFunc),
		queries:  make(map[reflect.Type]func() invokeFunc),
		events:   make(map[reflect.Type][]func() notifyFunc),
		logger:   logger.WithField("component", "mediator"),
		metrics:  metrics.Use(),
	}
	m.idle = sync.NewCond(&m.pendingMu)
	return m
}

// Freeze forbids further registrations. Called once all modules are loaded.
func (m *Mediator) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (m *Mediator) registerSingle(registry map[reflect.Type]func() invokeFunc, t reflect.Type, f func() invokeFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen.WithMessage("cannot register %s after startup", t)
	}
	if _, exists := registry[t]; exists {
		return ErrAlreadyRegistered.WithMessage("handler for %s already registered", t)
	}
	registry[t] = f
	return nil
}

func RegisterCommand[C any, R any](m *Mediator, factory func() CommandHandler[C, R]) error {
	return m.registerSingle(m.commands, typeOf[C](), func() invokeFunc {
		h := factory()
		return func(ctx context.Context, msg any) (any, error) {
			return h.Handle(ctx, msg.(C))
		}
	})
}

func RegisterQuery[Q any, R any](m *Mediator, factory func() QueryHandler[Q, R]) error {
	return m.registerSingle(m.queries, typeOf[Q](), func() invokeFunc {
		h := factory()
		return func(ctx context.Context, msg any) (any, error) {
			return h.Handle(ctx, msg.(Q))
		}
	})
}

func RegisterEvents[E any](m *Mediator, factories ...func() EventHandler[E]) error {
	t := typeOf[E]()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen.WithMessage("cannot register %s after startup", t)
	}
	for _, factory := range factories {
		factory := factory
		m.events[t] = append(m.events[t], func() notifyFunc {
			h := factory()
			return func(ctx context.Context, event any) error {
				return h.Handle(ctx, event.(E))
			}
		})
	}
	return nil
}

// Send dispatches cmd to its single command handler.
func (m *Mediator) Send(ctx context.Context, cmd any) (any, error) {
	return m.dispatch(ctx, "command", m.commands, cmd)
}

// Ask dispatches q to its single query handler.
func (m *Mediator) Ask(ctx context.Context, q any) (any, error) {
	return m.dispatch(ctx, "query", m.queries, q)
}

func (m *Mediator) dispatch(ctx context.Context, kind string, registry map[reflect.Type]func() invokeFunc, msg any) (any, error) {
	t := reflect.TypeOf(msg)
	m.mu.RLock()
	factory, ok := registry[t]
	m.mu.RUnlock()
	if !ok {
		m.metrics.DispatchTotal.WithLabelValues(kind, fmt.Sprint(t), "no_handler").Inc()
		return nil, ErrNoHandler.WithMessage("no %s handler registered for %v", kind, t)
	}

	ctx, span := tracer.Start(ctx, "mediator."+kind,
		trace.WithAttributes(attribute.String("mediator.message", t.String())),
	)
	defer span.End()

	result, err := factory()(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.metrics.DispatchTotal.WithLabelValues(kind, t.String(), "error").Inc()
		return result, err
	}
	m.metrics.DispatchTotal.WithLabelValues(kind, t.String(), "ok").Inc()
	return result, nil
}

// Execute sends cmd and converts the result to R.
func Execute[R any, C any](ctx context.Context, m *Mediator, cmd C) (R, error) {
	var zero R
	res, err := m.Send(ctx, cmd)
	if err != nil {
		return zero, err
	}
	out, ok := res.(R)
	if !ok {
		return zero, ErrInvalidResult.WithMessage("expected %v, got %T", typeOf[R](), res)
	}
	return out, nil
}

// Query asks q and converts the result to R.
func Query[R any, Q any](ctx context.Context, m *Mediator, q Q) (R, error) {
	var zero R
	res, err := m.Ask(ctx, q)
	if err != nil {
		return zero, err
	}
	out, ok := res.(R)
	if !ok {
		return zero, ErrInvalidResult.WithMessage("expected %v, got %T", typeOf[R](), res)
	}
	return out, nil
}

// Publish starts every handler of every event as a detached goroutine and
// returns immediately. Handler failures are logged and never reported to
// the caller. Handlers run with a context that is not cancelled together
// with ctx.
func (m *Mediator) Publish(ctx context.Context, events ...any) {
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		if event == nil {
			continue
		}
		t := reflect.TypeOf(event)
		m.mu.RLock()
		factories := m.events[t]
		m.mu.RUnlock()

		m.metrics.DispatchTotal.WithLabelValues("event", t.String(), "published").Inc()
		if len(factories) == 0 {
			m.logger.WithField("event", t.String()).Warn("mediator.Publish: no matching handlers")
			continue
		}
		for _, factory := range factories {
			m.track(1)
			go m.runEventHandler(detached, t, factory, event)
		}
	}
}

func (m *Mediator) runEventHandler(ctx context.Context, t reflect.Type, factory func() notifyFunc, event any) {
	defer m.track(-1)
	defer func() {
		if r := recover(); r != nil {
			m.metrics.EventHandlerErrors.WithLabelValues(t.String()).Inc()
			m.logger.WithField("event", t.String()).Errorf("mediator: event handler panicked with event %+v: %v", event, r)
		}
	}()
	if err := factory()(ctx, event); err != nil {
		m.metrics.EventHandlerErrors.WithLabelValues(t.String()).Inc()
		m.logger.WithError(err).WithField("event", t.String()).Error("mediator: event handler failed")
	}
}

func (m *Mediator) track(delta int) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending += delta
	if m.pending == 0 {
		m.idle.Broadcast()
	}
}

// Wait blocks until no event handler is running, including handlers
// published by other handlers. Publishing may continue while Wait blocks.
func (m *Mediator) Wait() {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	for m.pending > 0 {
		m.idle.Wait()
	}
}

func (m *Mediator) EventHandlersCount(event any) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[reflect.TypeOf(event)])
}
