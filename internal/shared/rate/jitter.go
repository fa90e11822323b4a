package rate

import (
	"context"
	"go.uber.org/ratelimit"
)

// Jitter hands out at most limit tokens per second through a channel.
// A non-positive limit yields an unpaced Jitter whose Wait never blocks.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

func NewJitter(ctx context.Context, limit int) *Jitter {
	if limit <= 0 {
		return &Jitter{}
	}

	brst := int(float64(limit) * 0.1)
	if brst < 1 {
		brst = 1
	}

	jitter := &Jitter{
		limit: limit,
		ch:    make(chan struct{}, brst),
		l:     ratelimit.New(limit),
	}
	go jitter.provider(ctx)
	return jitter
}

func (l *Jitter) provider(ctx context.Context) {
	defer close(l.ch)
	for {
		l.l.Take()
		select {
		case <-ctx.Done():
			return
		case l.ch <- struct{}{}:
		}
	}
}

func (l *Jitter) Limit() int { return l.limit }

// Wait blocks until a token is available or ctx is done.
// After the provider context is cancelled Wait returns immediately.
func (l *Jitter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	}
}

func (l *Jitter) Chan() <-chan struct{} {
	return l.ch
}
