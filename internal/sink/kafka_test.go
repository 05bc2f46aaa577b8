package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/medline-loader/internal/domain"
	"github.com/helixir/medline-loader/internal/observability"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
	// failOn makes the n-th WriteMessages call (1-based) return err.
	failOn int
	calls  int
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.failOn == 0 || f.calls == f.failOn) {
		return f.err
	}
	batch := make([]kafka.Message, len(msgs))
	copy(batch, msgs)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func (f *fakeWriter) messages() []kafka.Message {
	var out []kafka.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func newTestKafka(t *testing.T, w MessageWriter, batchSize int) *Kafka {
	t.Helper()
	k := NewKafkaWithWriter(w, "citations", batchSize, zerolog.Nop())
	k.spoolDir = t.TempDir()
	return k
}

func spoolFiles(t *testing.T, k *Kafka) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(k.spoolDir)
	require.NoError(t, err)
	return entries
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafka_CommitPublishesInBatches(t *testing.T) {
	w := &fakeWriter{}
	k := newTestKafka(t, w, 2)
	ctx := observability.WithRun(context.Background(), "run-7", "dump.xml")

	sess, err := k.Begin(ctx)
	require.NoError(t, err)

	title := "Abstract text"
	for i := int64(1); i <= 5; i++ {
		id, err := sess.Persist(ctx, &domain.FlatRow{PMID: i, JournalTitle: "J", Abstract: &title})
		require.NoError(t, err)
		assert.Equal(t, domain.RowID("citations/"+strconv.FormatInt(i, 10)), id)
	}
	assert.Empty(t, w.batches, "nothing is written before commit")

	require.NoError(t, sess.Commit(ctx))
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[0], 2)
	assert.Len(t, w.batches[2], 1)

	msgs := w.messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "1", string(msgs[0].Key))
	assert.Equal(t, "run-7", headerValue(msgs[0], HeaderRunID))
	assert.Equal(t, "dump.xml", headerValue(msgs[0], HeaderSource))

	var row map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &row))
	assert.Equal(t, float64(1), row["pmid"])
	assert.Equal(t, "Abstract text", row["abstract"])
	assert.Nil(t, row["objective"])
	assert.Contains(t, row, "objective", "absent fields are encoded as null")

	assert.Empty(t, spoolFiles(t, k), "spool file is removed after commit")
}

func TestKafka_RollbackPublishesNothing(t *testing.T) {
	w := &fakeWriter{}
	k := newTestKafka(t, w, 10)
	ctx := context.Background()

	sess, err := k.Begin(ctx)
	require.NoError(t, err)
	_, err = sess.Persist(ctx, &domain.FlatRow{PMID: 1})
	require.NoError(t, err)

	require.Len(t, spoolFiles(t, k), 1)

	require.NoError(t, sess.Rollback(ctx))
	assert.Empty(t, w.batches)
	assert.Empty(t, spoolFiles(t, k))

	_, err = sess.Persist(ctx, &domain.FlatRow{PMID: 2})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestKafka_CommitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := newTestKafka(t, w, 10)
	ctx := context.Background()

	sess, err := k.Begin(ctx)
	require.NoError(t, err)
	_, err = sess.Persist(ctx, &domain.FlatRow{PMID: 1})
	require.NoError(t, err)

	err = sess.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	var partial *PartialCommitError
	assert.False(t, errors.As(err, &partial), "nothing was published")
	assert.Empty(t, spoolFiles(t, k))
}

func TestKafka_CommitFailsMidway(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down"), failOn: 2}
	k := newTestKafka(t, w, 2)
	ctx := context.Background()

	sess, err := k.Begin(ctx)
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		_, err := sess.Persist(ctx, &domain.FlatRow{PMID: i})
		require.NoError(t, err)
	}

	err = sess.Commit(ctx)
	var partial *PartialCommitError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Committed)
	assert.Contains(t, err.Error(), "write messages 2-4 of 5: broker down")
	assert.Len(t, w.messages(), 2)
	assert.NoError(t, sess.Rollback(ctx), "rollback after a failed commit is a no-op")
}

func TestKafka_SpoolsRowsOutsideMemory(t *testing.T) {
	w := &fakeWriter{}
	k := newTestKafka(t, w, 50)
	ctx := context.Background()

	sess, err := k.Begin(ctx)
	require.NoError(t, err)

	abstract := strings.Repeat("a", 1024)
	const rows = 2000
	for i := int64(1); i <= rows; i++ {
		_, err := sess.Persist(ctx, &domain.FlatRow{PMID: i, JournalTitle: "J", Abstract: &abstract})
		require.NoError(t, err)
	}

	ks := sess.(*kafkaSession)
	require.NoError(t, ks.w.Flush())
	info, err := ks.spool.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(rows*1024), "rows live in the spool file")

	require.NoError(t, sess.Commit(ctx))
	require.Len(t, w.batches, rows/50)
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), 50)
	}
	msgs := w.messages()
	require.Len(t, msgs, rows)
	assert.Equal(t, "1", string(msgs[0].Key))
	assert.Equal(t, "2000", string(msgs[rows-1].Key))
}

func TestKafka_DefaultsAndClose(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w, "t", 0, zerolog.Nop())
	assert.Equal(t, 100, k.batchSize)
	assert.Equal(t, "kafka", k.Name())

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}
