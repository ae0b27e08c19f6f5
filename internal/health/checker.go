// Package health probes the tracker's dependencies.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusUp   = "UP"
	statusDown = "DOWN"
)

// Probe reports liveness of one dependency; a nil error means up.
type Probe func(ctx context.Context) error

// Checker runs every registered probe concurrently, each under its own
// timeout. One probe failing or hanging never affects the others' result.
type Checker struct {
	probes  map[string]Probe
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	return &Checker{probes: make(map[string]Probe), timeout: timeout}
}

// Register adds a probe. Not safe to call concurrently with Check.
func (c *Checker) Register(name string, p Probe) *Checker {
	c.probes[name] = p
	return c
}

func (c *Checker) names() []string {
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check returns "UP" or "DOWN: <reason>" for every probe. Probes are started
// in name order.
func (c *Checker) Check(ctx context.Context) map[string]string {
	var (
		mu     sync.Mutex
		result = make(map[string]string, len(c.probes))
		g      errgroup.Group
	)

	for _, name := range c.names() {
		name, probe := name, c.probes[name]
		g.Go(func() error {
			status := c.run(ctx, probe)
			mu.Lock()
			result[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (c *Checker) run(ctx context.Context, probe Probe) string {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- probe(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return statusDown + ": " + err.Error()
		}
		return StatusUp
	case <-ctx.Done():
		return statusDown + ": " + ctx.Err().Error()
	}
}

// Healthy reports whether every status is UP.
func Healthy(statuses map[string]string) bool {
	for _, s := range statuses {
		if s != StatusUp {
			return false
		}
	}
	return true
}
