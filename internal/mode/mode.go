// Package mode holds the process-wide operating mode, switchable at runtime.
package mode

import (
	"fmt"
	"sync/atomic"
)

type Mode string

const (
	Mock Mode = "mock"
	Live Mode = "live"
)

func Parse(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Mock, Live:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q: want %q or %q", s, Mock, Live)
	}
}

// Cell is safe for concurrent use.
type Cell struct {
	v atomic.Value
}

func New(initial Mode) *Cell {
	c := &Cell{}
	c.v.Store(initial)
	return c
}

func (c *Cell) Get() Mode {
	return c.v.Load().(Mode)
}

// Set validates s and stores it, returning the new mode.
func (c *Cell) Set(s string) (Mode, error) {
	m, err := Parse(s)
	if err != nil {
		return c.Get(), err
	}
	c.v.Store(m)
	return m, nil
}
