// Package generation defines the contract between the conversation engine
// and text generation backends, plus the backends themselves.
package generation

import (
	"context"
	"sort"
	"time"

	"github.com/iota-uz/bothub/pkg/metrics"
	"github.com/iota-uz/bothub/pkg/serrors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role
	Content string
}

// Config carries the bot's sampling settings.
type Config struct {
	Model             string
	Temperature       float64
	TopP              float64
	TopK              int
	MaxResponse       int
	RepetitionPenalty float64
}

// Quota is charged by adapters that know how many tokens a call consumed.
type Quota interface {
	Deduct(tokens int) error
}

type Request struct {
	Messages        []Message
	SystemPrompt    string
	Config          Config
	Quota           Quota
	LastUserMessage string
}

// Adapter produces a reply for a request. An empty reply with a nil error
// means the backend was unavailable and the caller should fall back.
type Adapter interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type AdapterFunc func(ctx context.Context, req Request) (string, error)

func (f AdapterFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Registry maps generation_model keys to adapters. It is immutable once built.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters map[string]Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for key, a := range adapters {
		r.adapters[key] = instrumented{name: key, next: a}
	}
	return r
}

func (r *Registry) Get(key string) (Adapter, error) {
	a, ok := r.adapters[key]
	if !ok {
		return nil, serrors.ErrProcessing.WithMessage("generation model %q is not registered", key)
	}
	return a, nil
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type instrumented struct {
	name string
	next Adapter
}

func (i instrumented) Generate(ctx context.Context, req Request) (string, error) {
	m := metrics.Use()
	start := time.Now()
	reply, err := i.next.Generate(ctx, req)
	m.GenerationLatency.WithLabelValues(i.name).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case reply == "":
		result = "empty"
	}
	m.GenerationTotal.WithLabelValues(i.name, result).Inc()
	return reply, err
}
