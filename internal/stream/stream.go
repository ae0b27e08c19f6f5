// Package stream adapts message brokers to a single consume loop. Each
// delivered message is handed to the Handler on the consuming goroutine, so a
// topic's messages are processed in delivery order.
package stream

import (
	"context"
	"fmt"

	"fleet-monitor/tracker/internal/config"
)

type Message struct {
	Topic   string
	Payload []byte
}

type Handler func(ctx context.Context, msg Message)

// Source delivers messages from a fixed set of topics until ctx is done.
type Source interface {
	Run(ctx context.Context, h Handler) error
	Ping(ctx context.Context) error
	Close() error
}

// NewSource builds the source selected by cfg.StreamDriver, subscribed to the
// location and alerts topics.
func NewSource(cfg *config.Config) (Source, error) {
	topics := []string{cfg.LocationTopic, cfg.AlertsTopic}

	switch cfg.StreamDriver {
	case config.StreamKafka:
		return NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaGroupID, topics...), nil
	case config.StreamMQTT:
		return NewMQTTSource(cfg.MQTTURL, "tracker", topics...), nil
	default:
		return nil, fmt.Errorf("unknown stream driver %q", cfg.StreamDriver)
	}
}
