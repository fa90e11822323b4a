package merge

import "github.com/Borislavv/go-subbox/internal/stream"

// Peekable wraps an iterator with one element of look-ahead.
type Peekable[T any] struct {
	src    stream.Iterator[T]
	head   T
	cached bool
	err    error
}

// NewPeekable wraps src.
func NewPeekable[T any](src stream.Iterator[T]) *Peekable[T] {
	return &Peekable[T]{src: src}
}

func (p *Peekable[T]) HasNext() bool {
	if p.cached {
		return true
	}
	if p.err != nil || !p.src.HasNext() {
		return false
	}
	v, err := p.src.Next()
	if err != nil {
		p.err = err
		return false
	}
	p.head, p.cached = v, true
	return true
}

// Peek returns the next element without consuming it.
func (p *Peekable[T]) Peek() (T, error) {
	if !p.HasNext() {
		var zero T
		if p.err != nil {
			return zero, p.err
		}
		return zero, stream.ErrExhausted
	}
	return p.head, nil
}

func (p *Peekable[T]) Next() (T, error) {
	v, err := p.Peek()
	if err != nil {
		return v, err
	}
	var zero T
	p.head, p.cached = zero, false
	return v, nil
}

func (p *Peekable[T]) Err() error {
	if p.err != nil {
		return p.err
	}
	return p.src.Err()
}
