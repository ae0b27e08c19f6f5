package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/metrics"
)

type fakeAppender struct {
	mu      sync.Mutex
	batches [][]domain.PositionSample
	fail    int
	calls   int
}

func (f *fakeAppender) AppendBatch(_ context.Context, samples []domain.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return errors.New("db down")
	}
	f.batches = append(f.batches, append([]domain.PositionSample(nil), samples...))
	return nil
}

func (f *fakeAppender) written() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func sample(id string, ts int64) domain.PositionSample {
	return domain.PositionSample{VehicleID: id, Timestamp: ts, Latitude: 1, Longitude: 2, Speed: 3}
}

func TestDispatcher(t *testing.T) {
	t.Run("enqueues", func(t *testing.T) {
		d := NewDispatcher(2)
		if !d.Dispatch(sample("V1", 1)) {
			t.Fatal("Dispatch should accept while there is room")
		}
		if got := <-d.HistoryChan; got.VehicleID != "V1" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("drops when full", func(t *testing.T) {
		d := NewDispatcher(1)
		before := testutil.ToFloat64(metrics.HistoryDispatchDrops)

		d.Dispatch(sample("V1", 1))
		if d.Dispatch(sample("V1", 2)) {
			t.Error("Dispatch should drop when the channel is full")
		}
		if got := testutil.ToFloat64(metrics.HistoryDispatchDrops) - before; got != 1 {
			t.Errorf("drop counter advanced by %v, want 1", got)
		}
	})

	t.Run("rejects unencodable ids", func(t *testing.T) {
		d := NewDispatcher(4)
		if d.Dispatch(sample("V_1", 1)) {
			t.Error("ids containing the row key separator should be rejected")
		}
		if len(d.HistoryChan) != 0 {
			t.Error("nothing should be queued")
		}
	})

	t.Run("close", func(t *testing.T) {
		d := NewDispatcher(4)
		d.Dispatch(sample("V1", 1))
		d.Close()
		d.Close()

		if d.Dispatch(sample("V1", 2)) {
			t.Error("Dispatch after Close should drop")
		}
		if _, ok := <-d.HistoryChan; !ok {
			t.Error("buffered sample should survive Close")
		}
		if _, ok := <-d.HistoryChan; ok {
			t.Error("channel should be closed")
		}
	})
}

func TestHistoryWriterFlushesOnBatchSize(t *testing.T) {
	ch := make(chan domain.PositionSample, 10)
	db := &fakeAppender{}
	w := NewHistoryWriter(ch, db, 3, 60000)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	for i := int64(1); i <= 3; i++ {
		ch <- sample("V1", i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for db.written() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if db.written() != 3 {
		t.Fatalf("written = %d, want 3 after a full batch", db.written())
	}

	close(ch)
	<-done
}

func TestHistoryWriterFlushesOnTicker(t *testing.T) {
	ch := make(chan domain.PositionSample, 10)
	db := &fakeAppender{}
	w := NewHistoryWriter(ch, db, 100, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ch <- sample("V1", 1)

	deadline := time.Now().Add(2 * time.Second)
	for db.written() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if db.written() != 1 {
		t.Errorf("written = %d, want the partial batch flushed by the ticker", db.written())
	}
}

func TestHistoryWriterDrainsOnClose(t *testing.T) {
	ch := make(chan domain.PositionSample, 10)
	db := &fakeAppender{}
	w := NewHistoryWriter(ch, db, 100, 60000)

	ch <- sample("V1", 1)
	ch <- sample("V2", 2)
	close(ch)

	w.Run(context.Background())

	if db.written() != 2 {
		t.Errorf("written = %d, want 2", db.written())
	}
}

func TestHistoryWriterFlushesOnCancel(t *testing.T) {
	ch := make(chan domain.PositionSample, 10)
	db := &fakeAppender{}
	w := NewHistoryWriter(ch, db, 100, 60000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	ch <- sample("V1", 1)
	// Let the writer pick the sample up before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for len(ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if db.written() != 1 {
		t.Errorf("written = %d, want pending batch flushed on cancel", db.written())
	}
}

func TestHistoryWriterRetry(t *testing.T) {
	t.Run("recovers after one failure", func(t *testing.T) {
		db := &fakeAppender{fail: 1}
		w := NewHistoryWriter(nil, db, 10, 1000)
		w.retryDelay = time.Millisecond

		before := testutil.ToFloat64(metrics.HistoryWriteSuccess)
		w.flush(context.Background(), []domain.PositionSample{sample("V1", 1), sample("V1", 2)})

		if db.calls != 2 {
			t.Errorf("calls = %d, want 2", db.calls)
		}
		if got := testutil.ToFloat64(metrics.HistoryWriteSuccess) - before; got != 2 {
			t.Errorf("success counter advanced by %v, want 2", got)
		}
	})

	t.Run("gives up after the retry", func(t *testing.T) {
		db := &fakeAppender{fail: 5}
		w := NewHistoryWriter(nil, db, 10, 1000)
		w.retryDelay = time.Millisecond

		before := testutil.ToFloat64(metrics.HistoryWriteFailures)
		w.flush(context.Background(), []domain.PositionSample{sample("V1", 1)})

		if db.calls != 2 {
			t.Errorf("calls = %d, want 2", db.calls)
		}
		if got := testutil.ToFloat64(metrics.HistoryWriteFailures) - before; got != 1 {
			t.Errorf("failure counter advanced by %v, want 1", got)
		}
	})
}
