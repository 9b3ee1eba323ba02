package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/telemetry"
)

// fetchWait bounds how long DequeueBatch waits for the next message once the topic is idle.
const fetchWait = 500 * time.Millisecond

// KafkaQueue carries raw entries over a Kafka topic, for deployments that already run Kafka
// and want the raw log outside the volatile store. Messages are keyed by guild so one guild's
// events keep their order within a partition.
//
// The consumer-group reader is created on the first DequeueBatch, so producer-only processes
// (cmd/server) never join the group or take partition assignments.
type KafkaQueue struct {
	writer    *kafka.Writer
	readerCfg kafka.ReaderConfig

	mu     sync.Mutex
	reader *kafka.Reader
}

var _ Queue = (*KafkaQueue)(nil)

// NewKafkaQueue creates the writer for topic. metrics may be nil.
func NewKafkaQueue(brokers []string, topic, groupID string, metrics *telemetry.Metrics) (*KafkaQueue, error) {
	if len(brokers) == 0 {
		return nil, errors.New("queue: KAFKA_BROKERS is required for the kafka backend")
	}
	if topic == "" || groupID == "" {
		return nil, errors.New("queue: kafka topic and group id are required")
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Printf("queue: kafka write of %d entries failed: %v", len(messages), err)
				metrics.EventsDropped(context.Background(), DropReasonKafkaWrite, int64(len(messages)))
			}
		},
	}
	return &KafkaQueue{
		writer: writer,
		readerCfg: kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			MaxWait:        fetchWait,
			CommitInterval: time.Second,
		},
	}, nil
}

// DropReasonKafkaWrite labels entries lost by a failed async Kafka write.
const DropReasonKafkaWrite = "kafka_write"

// Enqueue hands the entry to the async writer. It only fails on encoding or a closed writer:
// delivery errors surface later in the completion hook, which logs them and counts the
// entries as dropped.
func (q *KafkaQueue) Enqueue(ctx context.Context, entry domain.RawLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.GuildID.String()),
		Value: raw,
	})
}

func (q *KafkaQueue) consumer() *kafka.Reader {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reader == nil {
		q.reader = kafka.NewReader(q.readerCfg)
	}
	return q.reader
}

// DequeueBatch reads until max entries are collected or the topic stays idle for fetchWait.
// Offsets are committed as messages are read.
func (q *KafkaQueue) DequeueBatch(ctx context.Context, max int) ([]domain.RawLogEntry, error) {
	reader := q.consumer()
	raws := make([][]byte, 0, max)
	for len(raws) < max {
		readCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msg, err := reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if len(raws) > 0 {
				log.Printf("queue: kafka read stopped early: %v", err)
				break
			}
			return nil, fmt.Errorf("queue: kafka read: %w", err)
		}
		raws = append(raws, msg.Value)
	}
	return decodeAll(raws), nil
}

// Close flushes the writer and leaves the consumer group if one was joined.
func (q *KafkaQueue) Close() error {
	err := q.writer.Close()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reader != nil {
		err = errors.Join(err, q.reader.Close())
	}
	return err
}
