package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/metrics"
)

const (
	defaultRetryDelay = 500 * time.Millisecond
	finalFlushTimeout = 5 * time.Second
)

type SampleAppender interface {
	AppendBatch(ctx context.Context, samples []domain.PositionSample) error
}

// HistoryWriter batches samples from the dispatcher into the historical
// store. A batch is written when it reaches batchSize or when the flush
// interval elapses, and retried once before being counted as lost.
type HistoryWriter struct {
	ch         <-chan domain.PositionSample
	db         SampleAppender
	batchSize  int
	flushMS    int
	retryDelay time.Duration
	log        *slog.Logger
}

func NewHistoryWriter(
	ch <-chan domain.PositionSample,
	db SampleAppender,
	batchSize int,
	flushMS int,
) *HistoryWriter {
	return &HistoryWriter{
		ch:         ch,
		db:         db,
		batchSize:  batchSize,
		flushMS:    flushMS,
		retryDelay: defaultRetryDelay,
		log:        logging.Component("history-writer"),
	}
}

// Run returns once the channel is closed and drained, or when ctx is done.
// Either way the pending batch is flushed.
func (w *HistoryWriter) Run(ctx context.Context) {
	batch := make([]domain.PositionSample, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case s, ok := <-w.ch:
			if !ok {
				w.finalFlush(ctx, batch)
				return
			}
			batch = append(batch, s)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.finalFlush(ctx, batch)
			return
		}
	}
}

func (w *HistoryWriter) finalFlush(ctx context.Context, batch []domain.PositionSample) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()
	w.flush(ctx, batch)
}

func (w *HistoryWriter) flush(ctx context.Context, batch []domain.PositionSample) {
	err := w.db.AppendBatch(ctx, batch)
	if err != nil {
		w.log.Warn("history write failed, retrying", "batch", len(batch), "error", err)
		time.Sleep(w.retryDelay)
		err = w.db.AppendBatch(ctx, batch)
		if err != nil {
			w.log.Error("history write permanently failed", "batch", len(batch), "error", err)
			metrics.HistoryWriteFailures.Add(float64(len(batch)))
			return
		}
	}
	metrics.HistoryWriteSuccess.Add(float64(len(batch)))
}
