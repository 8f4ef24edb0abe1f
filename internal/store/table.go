package store

import (
	"context"
	"sync"
)

// Table serializes every reader and writer of one collection through a single lock.
// Mutations are load-modify-save under that lock, so a collection has exactly one writer at a time.
type Table[T Record] struct {
	mu   sync.Mutex
	coll Collection[T]
}

// NewTable wraps a collection.
func NewTable[T Record](coll Collection[T]) *Table[T] {
	return &Table[T]{coll: coll}
}

// View loads the collection and hands it to fn.
func (t *Table[T]) View(ctx context.Context, fn func([]T) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.coll.Load(ctx)
	if err != nil {
		return err
	}
	return fn(records)
}

// Mutate loads the collection, applies fn and saves the result when fn reports a change.
func (t *Table[T]) Mutate(ctx context.Context, fn func([]T) ([]T, bool, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.coll.Load(ctx)
	if err != nil {
		return err
	}
	updated, changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return t.coll.Save(ctx, updated)
}
