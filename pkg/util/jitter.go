package util

import (
	"context"
	"math/rand/v2"
	"time"
)

const jitterScale = 2

// Interval is the distribution of a scheduled task's period: Base, spread
// uniformly by +/- Jitter (a fraction of Base). Jitter 0 is a fixed interval.
type Interval struct {
	Base   time.Duration
	Jitter float64
}

// Between returns the interval drawing uniformly from [lo, hi].
func Between(lo, hi time.Duration) Interval {
	if hi <= lo {
		return Interval{Base: lo}
	}
	return Interval{
		Base:   (lo + hi) / 2, //nolint:mnd
		Jitter: float64(hi-lo) / float64(lo+hi),
	}
}

func (i Interval) Next() time.Duration {
	return jitter(i.Base, i.Jitter)
}

type JitterTicker struct {
	C    <-chan time.Time
	bump chan struct{}
	stop context.CancelFunc
}

func NewJitterTicker(ctx context.Context, interval Interval) *JitterTicker {
	tickCh := make(chan time.Time)
	bump := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(tickCh)
		timer := time.NewTimer(interval.Next())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-bump:
				timer.Reset(interval.Next())
			case t := <-timer.C:
				select {
				case <-ctx.Done():
					return
				case tickCh <- t:
				}
				timer.Reset(interval.Next())
			}
		}
	}()
	return &JitterTicker{C: tickCh, bump: bump, stop: cancel}
}

// Bump restarts the current period, postponing the next tick.
func (t *JitterTicker) Bump() {
	select {
	case t.bump <- struct{}{}:
	default:
	}
}

func (t *JitterTicker) Stop() {
	t.stop()
}

func jitter(d time.Duration, percent float64) time.Duration {
	if percent <= 0 {
		return d
	}
	delta := time.Duration(float64(d) * percent)
	if delta <= 0 {
		return d
	}
	n := int64(delta)*jitterScale + 1
	offset := time.Duration(rand.N(n)) - delta //nolint:gosec
	return d + offset
}
