package sink

import (
	"context"
	"strconv"
	"sync"

	"github.com/helixir/medline-loader/internal/domain"
)

// Memory keeps committed rows in memory. It backs dry runs and tests.
type Memory struct {
	name string
	keep bool

	mu        sync.Mutex
	rows      []domain.FlatRow
	committed int
	nextID    int64
}

// NewMemory returns a sink that retains committed rows.
func NewMemory() *Memory {
	return &Memory{name: "memory", keep: true}
}

// NewDiscard returns a sink that counts committed rows and keeps nothing.
func NewDiscard() *Memory {
	return &Memory{name: "discard"}
}

// Name implements Sink.
func (m *Memory) Name() string { return m.name }

// Begin implements Sink.
func (m *Memory) Begin(_ context.Context) (Session, error) {
	return &memorySession{sink: m}, nil
}

// Rows returns a copy of the committed rows in commit order.
func (m *Memory) Rows() []domain.FlatRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.FlatRow, len(m.rows))
	copy(out, m.rows)
	return out
}

// Committed returns the number of rows committed across all sessions.
func (m *Memory) Committed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

func (m *Memory) allocID() domain.RowID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return domain.RowID(m.name + "/" + strconv.FormatInt(m.nextID, 10))
}

type memorySession struct {
	sink    *Memory
	pending []domain.FlatRow
	count   int
	closed  bool
}

func (s *memorySession) Persist(ctx context.Context, row *domain.FlatRow) (domain.RowID, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.sink.keep {
		s.pending = append(s.pending, *row)
	}
	s.count++
	return s.sink.allocID(), nil
}

func (s *memorySession) Commit(_ context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	if s.sink.keep {
		s.sink.rows = append(s.sink.rows, s.pending...)
	}
	s.sink.committed += s.count
	s.pending = nil
	return nil
}

func (s *memorySession) Rollback(_ context.Context) error {
	s.closed = true
	s.pending = nil
	s.count = 0
	return nil
}
