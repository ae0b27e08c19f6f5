package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/tracker/internal/logging"
)

const kafkaRetryBackoff = time.Second

// messageReader is the part of *kafka.Reader the consume loop needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// KafkaSource consumes each topic with its own consumer-group reader.
// A message's offset is committed after the handler returns, so a crash
// mid-handle redelivers it.
type KafkaSource struct {
	brokers []string
	readers []messageReader
	backoff time.Duration
	log     *slog.Logger
}

func NewKafkaSource(brokers []string, groupID string, topics ...string) *KafkaSource {
	readers := make([]messageReader, 0, len(topics))
	for _, topic := range topics {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		}))
	}
	return &KafkaSource{
		brokers: brokers,
		readers: readers,
		backoff: kafkaRetryBackoff,
		log:     logging.Component("kafka"),
	}
}

func (k *KafkaSource) Run(ctx context.Context, h Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range k.readers {
		r := r
		g.Go(func() error {
			return k.consume(ctx, r, h)
		})
	}
	return g.Wait()
}

func (k *KafkaSource) consume(ctx context.Context, r messageReader, h Handler) error {
	topic := r.Config().Topic
	k.log.Info("consuming", "topic", topic, "group", r.Config().GroupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			k.log.Warn("read failed, backing off", "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(k.backoff):
			}
			continue
		}

		h(ctx, Message{Topic: m.Topic, Payload: m.Value})

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			k.log.Warn("commit failed", "topic", topic, "offset", m.Offset, "error", err)
		}
	}
}

// Ping succeeds if any configured broker accepts a connection.
func (k *KafkaSource) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		conn.Close()
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	return errors.Join(errs...)
}

func (k *KafkaSource) Close() error {
	var errs []error
	for _, r := range k.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
