package tier

import (
	"context"
	"sync/atomic"
)

// Memory holds one entry behind an atomic pointer so a swap is all-or-nothing
// for readers.
type Memory[T any] struct {
	p atomic.Pointer[Entry[T]]
}

func NewMemory[T any]() *Memory[T] { return &Memory[T]{} }

func (m *Memory[T]) Name() string { return "memory" }

func (m *Memory[T]) Load(context.Context) (Entry[T], bool, error) {
	e := m.p.Load()
	if e == nil {
		return Entry[T]{}, false, nil
	}
	return *e, true, nil
}

func (m *Memory[T]) Store(_ context.Context, e Entry[T]) error {
	m.p.Store(&e)
	return nil
}

func (m *Memory[T]) Clear() { m.p.Store(nil) }
