package sink

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/helixir/medline-loader/internal/domain"
)

// WaitObserver receives the time each Persist spent waiting for a token.
type WaitObserver func(waited time.Duration)

// Throttled limits the rate at which rows reach the wrapped sink. It waits,
// it never retries. The limiter is shared by every session of the sink.
type Throttled struct {
	inner   Sink
	limiter *rate.Limiter
	onWait  WaitObserver
}

// NewThrottled wraps inner with a token bucket of ratePerSecond and burst.
func NewThrottled(inner Sink, ratePerSecond float64, burst int, onWait WaitObserver) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		onWait:  onWait,
	}
}

// Name implements Sink.
func (t *Throttled) Name() string { return t.inner.Name() }

// Begin implements Sink.
func (t *Throttled) Begin(ctx context.Context) (Session, error) {
	inner, err := t.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &throttledSession{Session: inner, sink: t}, nil
}

type throttledSession struct {
	Session
	sink *Throttled
}

func (s *throttledSession) Persist(ctx context.Context, row *domain.FlatRow) (domain.RowID, error) {
	start := time.Now()
	if err := s.sink.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// The limiter refuses a wait that would outlast the deadline
			// without waiting for ctx to expire.
			if _, ok := ctx.Deadline(); ok {
				return "", fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
			}
		}
		return "", err
	}
	if s.sink.onWait != nil {
		s.sink.onWait(time.Since(start))
	}
	return s.Session.Persist(ctx, row)
}
