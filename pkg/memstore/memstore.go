// Package memstore is an in-memory, table-oriented store with serialized
// transactions. It backs the in-memory unit-of-work implementations used by
// tests and by DB_DRIVER=memory.
//
// Records are stored as values; writers must Put a fresh value instead of
// mutating one obtained from Get.
package memstore

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
)

var ErrTxDone = errors.New("memstore: transaction already finished")

type txKey struct{}

type Store struct {
	// writer serializes transactions; state guards tables.
	writer sync.Mutex
	state  sync.RWMutex
	tables map[string]map[string]any
}

func New() *Store {
	return &Store{tables: make(map[string]map[string]any)}
}

type Tx struct {
	store  *Store
	staged map[string]map[string]any
	done   bool
}

// InTx runs fn inside a transaction. A transaction already bound to ctx for
// the same store is joined; only the outermost call commits. The staged
// writes are discarded when fn fails or ctx is cancelled.
func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok && tx.store == s && !tx.done {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writer.Lock()
	defer s.writer.Unlock()

	tx := &Tx{store: s, staged: make(map[string]map[string]any)}
	defer func() { tx.done = true }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// UseTx returns the transaction bound to ctx, if any.
func UseTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx.done {
		return nil, false
	}
	return tx, true
}

func (s *Store) commit(tx *Tx) {
	s.state.Lock()
	defer s.state.Unlock()
	for name, table := range tx.staged {
		s.tables[name] = table
	}
}

// table returns the staged copy of name, cloning the committed table on
// first access.
func (tx *Tx) table(name string) map[string]any {
	if t, ok := tx.staged[name]; ok {
		return t
	}
	tx.store.state.RLock()
	committed := tx.store.tables[name]
	tx.store.state.RUnlock()

	t := make(map[string]any, len(committed))
	maps.Copy(t, committed)
	tx.staged[name] = t
	return t
}

func (tx *Tx) Get(table, key string) (any, bool) {
	v, ok := tx.table(table)[key]
	return v, ok
}

func (tx *Tx) Put(table, key string, value any) {
	tx.table(table)[key] = value
}

// Delete removes key and reports whether it existed.
func (tx *Tx) Delete(table, key string) bool {
	t := tx.table(table)
	if _, ok := t[key]; !ok {
		return false
	}
	delete(t, key)
	return true
}

// Keys returns the keys of table in ascending order.
func (tx *Tx) Keys(table string) []string {
	t := tx.table(table)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func Get[T any](tx *Tx, table, key string) (T, bool) {
	var zero T
	v, ok := tx.Get(table, key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Filter returns every record of type T in table accepted by keep, ordered
// by key.
func Filter[T any](tx *Tx, table string, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, k := range tx.Keys(table) {
		v, ok := Get[T](tx, table, k)
		if !ok {
			continue
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Len reports the committed number of records in table. Intended for tests.
func (s *Store) Len(table string) int {
	s.state.RLock()
	defer s.state.RUnlock()
	return len(s.tables[table])
}
