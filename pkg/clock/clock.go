// ABOUTME: Virtual stream clock: local wall time plus an additive adjustment
// ABOUTME: Adjustments are atomic so the output scheduler can read Now() concurrently
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Quality describes how trustworthy the clock currently is
type Quality int

const (
	QualityLost Quality = iota
	QualityDegraded
	QualityGood
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// Clock is a per-stream logical clock in nanoseconds
type Clock struct {
	adjustment atomic.Int64 // nanoseconds added to wall time
	synced     atomic.Bool
	wall       func() time.Time
}

// Option configures a Clock
type Option func(*Clock)

// WithWallClock replaces time.Now as the wall time source
func WithWallClock(fn func() time.Time) Option {
	return func(c *Clock) {
		c.wall = fn
	}
}

// New creates a clock with no adjustment
func New(opts ...Option) *Clock {
	c := &Clock{wall: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wall returns the unadjusted local time in nanoseconds
func (c *Clock) Wall() uint64 {
	return uint64(c.wall().UnixNano())
}

// Now returns local wall time plus the adjustment
func (c *Clock) Now() uint64 {
	return uint64(c.wall().UnixNano() + c.adjustment.Load())
}

// SetTime makes Now() report t at this instant
func (c *Clock) SetTime(t uint64) {
	c.adjustment.Store(int64(t) - c.wall().UnixNano())
	c.synced.Store(true)
}

// AdjustBy applies an incremental correction
func (c *Clock) AdjustBy(delta int64) {
	c.adjustment.Add(delta)
}

// Adjustment returns the current correction in nanoseconds
func (c *Clock) Adjustment() int64 {
	return c.adjustment.Load()
}

// Quality reports whether the clock has been set by a peer
func (c *Clock) Quality() Quality {
	if c.synced.Load() {
		return QualityGood
	}
	return QualityLost
}

// Until returns the duration until target, negative if already past
func (c *Clock) Until(target uint64) time.Duration {
	return time.Duration(int64(target) - int64(c.Now()))
}

// SleepUntil blocks until Now() >= target or ctx is done.
// It returns immediately when target has already passed.
func (c *Clock) SleepUntil(ctx context.Context, target uint64) error {
	d := c.Until(target)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add returns t moved by d, saturating at zero
func Add(t uint64, d time.Duration) uint64 {
	if d < 0 && uint64(-d) > t {
		return 0
	}
	return uint64(int64(t) + int64(d))
}
