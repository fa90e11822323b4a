// Package merge combines sorted lazy sequences into one sorted sequence.
package merge

import "github.com/Borislavv/go-subbox/internal/stream"

type twoWay[T any] struct {
	left, right *Peekable[T]
	cmp         func(a, b T) int
}

// Two merges two sequences, each already ascending by cmp. When elements
// compare equal the right one is emitted first.
func Two[T any](left, right stream.Iterator[T], cmp func(a, b T) int) stream.Iterator[T] {
	return &twoWay[T]{left: NewPeekable(left), right: NewPeekable(right), cmp: cmp}
}

func (m *twoWay[T]) HasNext() bool {
	// an errored side stops the merge so the failure is not hidden by the other side
	l, r := m.left.HasNext(), m.right.HasNext()
	if m.Err() != nil {
		return false
	}
	return l || r
}

func (m *twoWay[T]) Next() (T, error) {
	if !m.HasNext() {
		var zero T
		if err := m.Err(); err != nil {
			return zero, err
		}
		return zero, stream.ErrExhausted
	}
	if !m.left.HasNext() {
		return m.right.Next()
	}
	if !m.right.HasNext() {
		return m.left.Next()
	}
	a, _ := m.left.Peek()
	b, _ := m.right.Peek()
	if m.cmp(a, b) < 0 {
		return m.left.Next()
	}
	return m.right.Next()
}

func (m *twoWay[T]) Err() error {
	if err := m.left.Err(); err != nil {
		return err
	}
	return m.right.Err()
}

// Sorted merges its into a single sequence ascending by cmp. Inputs are
// reduced pairwise, level by level, so every element passes through
// O(log k) comparisons. No input is pulled before the first HasNext.
func Sorted[T any](its []stream.Iterator[T], cmp func(a, b T) int) stream.Iterator[T] {
	switch len(its) {
	case 0:
		return stream.Empty[T]()
	case 1:
		return its[0]
	}

	level := its
	for len(level) > 1 {
		next := make([]stream.Iterator[T], 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, Two(level[i], level[i+1], cmp))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}
