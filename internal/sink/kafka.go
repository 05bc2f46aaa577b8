package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/medline-loader/internal/domain"
	"github.com/helixir/medline-loader/internal/observability"
)

// Header keys set on every published row.
const (
	HeaderRunID  = "run_id"
	HeaderSource = "source"
)

// MessageWriter is the subset of *kafka.Writer used by the Kafka sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration for the Kafka sink.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives one message per row, keyed by pmid.
	Topic string
	// BatchSize is the number of messages written per WriteMessages call on commit.
	BatchSize int
	// WriteTimeout bounds a single batch write.
	WriteTimeout time.Duration
	// SpoolDir holds the per-session spool files. Empty uses os.TempDir.
	SpoolDir string
}

// Kafka publishes rows as JSON messages.
//
// A session spools its rows to a temporary file and publishes them only on
// Commit, so memory stays bounded by one batch and a run rolled back before
// Commit publishes nothing. Kafka offers no atomic multi-batch write: when a
// batch fails during Commit the batches before it stay published, and Commit
// returns a *PartialCommitError carrying their row count.
type Kafka struct {
	writer    MessageWriter
	topic     string
	batchSize int
	spoolDir  string
	logger    zerolog.Logger
}

// NewKafka creates a Kafka sink backed by a kafka-go writer.
func NewKafka(cfg KafkaConfig, logger zerolog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
	}
	k := NewKafkaWithWriter(writer, cfg.Topic, cfg.BatchSize, logger)
	k.spoolDir = cfg.SpoolDir
	return k
}

// NewKafkaWithWriter creates a Kafka sink around an existing writer.
func NewKafkaWithWriter(w MessageWriter, topic string, batchSize int, logger zerolog.Logger) *Kafka {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Kafka{
		writer:    w,
		topic:     topic,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "kafka_sink").Str("topic", topic).Logger(),
	}
}

// Name implements Sink.
func (k *Kafka) Name() string { return "kafka" }

// Begin implements Sink. The run ID and source carried by ctx are attached
// to every message as headers.
func (k *Kafka) Begin(ctx context.Context) (Session, error) {
	spool, err := os.CreateTemp(k.spoolDir, "medline-kafka-*.spool")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	runID, source := observability.RunFromContext(ctx)
	return &kafkaSession{
		sink:  k,
		spool: spool,
		w:     bufio.NewWriter(spool),
		headers: []kafka.Header{
			{Key: HeaderRunID, Value: []byte(runID)},
			{Key: HeaderSource, Value: []byte(source)},
		},
	}, nil
}

// Close closes the underlying writer.
func (k *Kafka) Close() error {
	k.logger.Info().Msg("closing kafka sink")
	return k.writer.Close()
}

// kafkaSession spools one line per row: the pmid key, a tab, the JSON value.
// encoding/json escapes control characters, so a value never contains a newline.
type kafkaSession struct {
	sink    *Kafka
	headers []kafka.Header
	spool   *os.File
	w       *bufio.Writer
	pending int
	closed  bool
}

func (s *kafkaSession) Persist(_ context.Context, row *domain.FlatRow) (domain.RowID, error) {
	if s.closed {
		return "", ErrSessionClosed
	}

	value, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	key := strconv.FormatInt(row.PMID, 10)

	line := make([]byte, 0, len(key)+len(value)+2)
	line = append(line, key...)
	line = append(line, '\t')
	line = append(line, value...)
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		return "", fmt.Errorf("spool row: %w", err)
	}
	s.pending++
	return domain.RowID(s.sink.topic + "/" + key), nil
}

func (s *kafkaSession) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	defer s.discard()

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush spool: %w", err)
	}
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}

	r := bufio.NewReader(s.spool)
	written := 0
	batch := make([]kafka.Message, 0, s.sink.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.sink.writer.WriteMessages(ctx, batch...); err != nil {
			return s.commitFailed(written, fmt.Errorf("write messages %d-%d of %d: %w",
				written, written+len(batch), s.pending, err))
		}
		written += len(batch)
		batch = make([]kafka.Message, 0, s.sink.batchSize)
		return nil
	}

	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) && len(line) == 0 {
			break
		}
		if err != nil {
			return s.commitFailed(written, fmt.Errorf("read spool: %w", err))
		}
		key, value, ok := bytes.Cut(bytes.TrimSuffix(line, []byte{'\n'}), []byte{'\t'})
		if !ok {
			return s.commitFailed(written, errors.New("read spool: corrupt record"))
		}
		batch = append(batch, kafka.Message{Key: key, Value: value, Headers: s.headers})
		if len(batch) == s.sink.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	s.sink.logger.Debug().
		Int("messages", written).
		Msg("published run to kafka")
	return nil
}

// commitFailed reports a failed commit. Once any batch is published the
// failure is partial and the caller learns how many rows remain.
func (s *kafkaSession) commitFailed(written int, err error) error {
	if written == 0 {
		return err
	}
	s.sink.logger.Error().Err(err).
		Int("published", written).
		Int("unpublished", s.pending-written).
		Msg("kafka commit failed after publishing part of the run")
	return &PartialCommitError{Committed: written, Err: err}
}

func (s *kafkaSession) Rollback(_ context.Context) error {
	if s.closed {
		return nil
	}
	s.sink.logger.Debug().
		Int("discarded", s.pending).
		Msg("discarding spooled messages")
	s.closed = true
	s.discard()
	return nil
}

func (s *kafkaSession) discard() {
	if s.spool == nil {
		return
	}
	name := s.spool.Name()
	if err := s.spool.Close(); err != nil {
		s.sink.logger.Warn().Err(err).Str("spool", name).Msg("failed to close spool file")
	}
	if err := os.Remove(name); err != nil {
		s.sink.logger.Warn().Err(err).Str("spool", name).Msg("failed to remove spool file")
	}
	s.spool = nil
	s.w = nil
}
