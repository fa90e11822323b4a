package queue

import "sync"

// Queue is a FIFO ring buffer that grows when full, so pushes never fail.
type Queue[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int
	len        int
}

func (q *Queue[T]) Init(size int) {
	if size < 2 {
		size = 2
	}
	q.mu.Lock()
	q.buf = make([]T, size)
	q.head, q.tail, q.len = 0, 0, 0
	q.mu.Unlock()
}

func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.len == len(q.buf) {
		q.grow()
	}
	q.buf[q.head] = v
	q.head = (q.head + 1) % len(q.buf)
	q.len++
}

func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.len == 0 {
		return zero, false
	}
	v := q.buf[q.tail]
	q.buf[q.tail] = zero // release reference
	q.tail = (q.tail + 1) % len(q.buf)
	q.len--
	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// grow doubles the buffer and unwraps the ring so tail starts at zero. Caller holds mu.
func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if size < 2 {
		size = 2
	}
	buf := make([]T, size)
	for i := 0; i < q.len; i++ {
		buf[i] = q.buf[(q.tail+i)%len(q.buf)]
	}
	q.buf = buf
	q.tail = 0
	q.head = q.len
}
