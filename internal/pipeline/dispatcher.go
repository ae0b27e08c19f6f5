package pipeline

import (
	"sync"

	"fleet-monitor/tracker/internal/domain"
	"fleet-monitor/tracker/internal/metrics"
	"fleet-monitor/tracker/internal/store"
)

// Dispatcher hands samples to the history writers without ever blocking the
// ingestion path. Samples are dropped when the channel is full, after Close,
// or when the vehicle id cannot be encoded into a row key.
type Dispatcher struct {
	HistoryChan chan domain.PositionSample

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(historySize int) *Dispatcher {
	return &Dispatcher{
		HistoryChan: make(chan domain.PositionSample, historySize),
	}
}

func (d *Dispatcher) Dispatch(s domain.PositionSample) bool {
	if !store.RowKeyEncodable(s.VehicleID) {
		metrics.HistoryDispatchDrops.Inc()
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.HistoryDispatchDrops.Inc()
		return false
	}

	select {
	case d.HistoryChan <- s:
		return true
	default:
		metrics.HistoryDispatchDrops.Inc()
		return false
	}
}

// Close stops accepting samples and closes the channel so writers can drain
// what is buffered and exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.HistoryChan)
}
