package util

import (
	"sync/atomic"
	"time"
)

// Clock supplies timestamps for order-expiry checks. The engine never reads
// wall time directly: every operation takes the current time from its caller,
// so replays and tests are deterministic.
type Clock interface {
	Now() time.Time
	NowUnixMilli() uint64
}

type RealClock struct{}

func (RealClock) Now() time.Time       { return time.Now() }
func (RealClock) NowUnixMilli() uint64 { return uint64(time.Now().UnixMilli()) }

// ManualClock is a settable clock for tests. Timestamps only move forward.
type ManualClock struct {
	ms atomic.Uint64
}

func NewManualClock(startMs uint64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(startMs)
	return c
}

func (c *ManualClock) Now() time.Time       { return time.UnixMilli(int64(c.ms.Load())) }
func (c *ManualClock) NowUnixMilli() uint64 { return c.ms.Load() }

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.ms.Add(uint64(d.Milliseconds()))
}

// Set jumps to an absolute millisecond timestamp if it is ahead of the clock.
func (c *ManualClock) Set(ms uint64) {
	for {
		cur := c.ms.Load()
		if ms <= cur {
			return
		}
		if c.ms.CompareAndSwap(cur, ms) {
			return
		}
	}
}
