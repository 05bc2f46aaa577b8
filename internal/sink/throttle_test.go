package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/medline-loader/internal/domain"
)

func TestThrottled_PassesRowsThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	var waits int
	th := NewThrottled(inner, 1000, 10, func(time.Duration) { waits++ })
	assert.Equal(t, "memory", th.Name())

	sess, err := th.Begin(ctx)
	require.NoError(t, err)
	for i := int64(1); i <= 3; i++ {
		_, err := sess.Persist(ctx, &domain.FlatRow{PMID: i})
		require.NoError(t, err)
	}
	require.NoError(t, sess.Commit(ctx))

	assert.Len(t, inner.Rows(), 3)
	assert.Equal(t, 3, waits)
}

func TestThrottled_BurstIsInstant(t *testing.T) {
	ctx := context.Background()
	th := NewThrottled(NewDiscard(), 100, 5, nil)

	sess, err := th.Begin(ctx)
	require.NoError(t, err)

	start := time.Now()
	for i := int64(1); i <= 5; i++ {
		_, err := sess.Persist(ctx, &domain.FlatRow{PMID: i})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottled_WaitsAfterBurst(t *testing.T) {
	ctx := context.Background()
	th := NewThrottled(NewDiscard(), 10, 1, nil)

	sess, err := th.Begin(ctx)
	require.NoError(t, err)

	start := time.Now()
	for i := int64(1); i <= 3; i++ {
		_, err := sess.Persist(ctx, &domain.FlatRow{PMID: i})
		require.NoError(t, err)
	}
	// Two waits of ~100ms each at 10 rows/sec.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestThrottled_ContextCancelled(t *testing.T) {
	th := NewThrottled(NewDiscard(), 0.1, 1, nil)
	sess, err := th.Begin(context.Background())
	require.NoError(t, err)

	_, err = sess.Persist(context.Background(), &domain.FlatRow{PMID: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sess.Persist(ctx, &domain.FlatRow{PMID: 2})
	assert.Error(t, err)
}

func TestThrottled_WaitPastDeadline(t *testing.T) {
	th := NewThrottled(NewDiscard(), 0.001, 1, nil)
	sess, err := th.Begin(context.Background())
	require.NoError(t, err)

	_, err = sess.Persist(context.Background(), &domain.FlatRow{PMID: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err = sess.Persist(ctx, &domain.FlatRow{PMID: 2})
	require.Error(t, err)
	assert.NoError(t, ctx.Err(), "the limiter fails before the deadline passes")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
