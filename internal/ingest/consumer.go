// Package ingest consumes the location and alerts streams.
//
// Every message is forwarded verbatim to the broadcaster. Location messages
// are then decoded and written to the hot cache, and optionally handed to the
// history dispatcher. Failures are logged and counted; the message is
// considered consumed either way.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/metrics"
	"fleet-monitor/tracker/internal/stream"
)

type StateWriter interface {
	SetVehicleState(ctx context.Context, vehicleID string, fields map[string]interface{}) error
}

type Publisher interface {
	Broadcast(payload []byte) (dropped int)
}

type HistorySink interface {
	Dispatch(s domain.PositionSample) bool
}

type Outcome int

const (
	// OutcomeForwarded: alert broadcast, nothing stored.
	OutcomeForwarded Outcome = iota
	// OutcomeStored: location broadcast and written to the cache.
	OutcomeStored
	OutcomeMalformed
	OutcomeStoreFailed
	// OutcomeIgnored: message from a topic the consumer does not handle.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeStored:
		return "stored"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeStoreFailed:
		return "store_failed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome   Outcome
	VehicleID string
	Err       error
}

type Consumer struct {
	state   StateWriter
	pub     Publisher
	history HistorySink

	locationTopic string
	alertsTopic   string
	writeTimeout  time.Duration

	log *slog.Logger
}

const defaultWriteTimeout = 2 * time.Second

func NewConsumer(state StateWriter, pub Publisher, locationTopic, alertsTopic string, writeTimeout time.Duration) *Consumer {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Consumer{
		state:         state,
		pub:           pub,
		locationTopic: locationTopic,
		alertsTopic:   alertsTopic,
		writeTimeout:  writeTimeout,
		log:           logging.Component("ingest"),
	}
}

// WithHistory makes the consumer offer every decoded location sample to h.
func (c *Consumer) WithHistory(h HistorySink) *Consumer {
	c.history = h
	return c
}

// Run consumes src until ctx is done.
func (c *Consumer) Run(ctx context.Context, src stream.Source) error {
	return src.Run(ctx, func(ctx context.Context, msg stream.Message) {
		c.report(msg.Topic, c.Handle(ctx, msg))
	})
}

func (c *Consumer) Handle(ctx context.Context, msg stream.Message) Result {
	metrics.MessagesReceived.WithLabelValues(msg.Topic).Inc()

	switch msg.Topic {
	case c.alertsTopic:
		c.pub.Broadcast(msg.Payload)
		return Result{Outcome: OutcomeForwarded}
	case c.locationTopic:
		return c.handleLocation(ctx, msg.Payload)
	default:
		return Result{Outcome: OutcomeIgnored}
	}
}

func (c *Consumer) handleLocation(ctx context.Context, payload []byte) Result {
	c.pub.Broadcast(payload)

	report, err := DecodeLocation(payload)
	if err != nil {
		metrics.MessagesMalformed.WithLabelValues(c.locationTopic).Inc()
		return Result{Outcome: OutcomeMalformed, Err: err}
	}

	if c.history != nil {
		c.history.Dispatch(report.Sample())
	}

	// The write completes even if shutdown cancels ctx mid-message.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	if err := c.state.SetVehicleState(wctx, report.VehicleID, report.Fields()); err != nil {
		metrics.CacheWriteFailures.Inc()
		return Result{Outcome: OutcomeStoreFailed, VehicleID: report.VehicleID, Err: err}
	}
	return Result{Outcome: OutcomeStored, VehicleID: report.VehicleID}
}

func (c *Consumer) report(topic string, r Result) {
	switch r.Outcome {
	case OutcomeMalformed:
		c.log.Warn("dropping malformed message", "topic", topic, "error", r.Err)
	case OutcomeStoreFailed:
		c.log.Error("cache write failed", "topic", topic, "vehicle_id", r.VehicleID, "error", r.Err)
	case OutcomeIgnored:
		c.log.Debug("message from unhandled topic", "topic", topic)
	}
}
