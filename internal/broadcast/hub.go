// Package broadcast fans raw stream payloads out to live subscribers.
//
// Each subscriber gets a bounded queue drained by its own goroutine, so a slow
// or stalled subscriber loses messages instead of delaying the others or the
// ingestion path. A subscriber whose Send fails is removed and closed.
package broadcast

import (
	"log/slog"
	"sync"

	"fleet-monitor/tracker/internal/logging"
	"fleet-monitor/tracker/internal/metrics"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

type member struct {
	sub   Subscriber
	queue chan []byte
	done  chan struct{}
}

type Hub struct {
	mu      sync.RWMutex
	members map[*member]struct{}
	closed  bool

	queueSize int
	log       *slog.Logger
}

func NewHub(queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Hub{
		members:   make(map[*member]struct{}),
		queueSize: queueSize,
		log:       logging.Component("broadcast"),
	}
}

// Subscribe attaches sub and returns a func that detaches it. Messages
// broadcast before Subscribe returns are not delivered to sub.
func (h *Hub) Subscribe(sub Subscriber) (unsubscribe func()) {
	m := &member{
		sub:   sub,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.Close()
		return func() {}
	}
	h.members[m] = struct{}{}
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	go h.pump(m)

	return func() { h.remove(m) }
}

func (h *Hub) pump(m *member) {
	for {
		select {
		case <-m.done:
			return
		case payload := <-m.queue:
			if err := m.sub.Send(payload); err != nil {
				h.log.Debug("subscriber send failed, removing", "error", err)
				h.remove(m)
				return
			}
		}
	}
}

func (h *Hub) remove(m *member) {
	h.mu.Lock()
	_, ok := h.members[m]
	delete(h.members, m)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(m.done)
	m.sub.Close()
	metrics.Subscribers.Dec()
}

// Broadcast enqueues payload for every current subscriber without blocking.
// It returns the number of subscribers whose queue was full.
func (h *Hub) Broadcast(payload []byte) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for m := range h.members {
		select {
		case m.queue <- payload:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		metrics.BroadcastDrops.Add(float64(dropped))
	}
	return dropped
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Close detaches and closes every subscriber. Later Subscribe calls close the
// subscriber immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	members := make([]*member, 0, len(h.members))
	for m := range h.members {
		members = append(members, m)
	}
	h.mu.Unlock()

	for _, m := range members {
		h.remove(m)
	}
}
