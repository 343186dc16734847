// Package pacing spaces outbound vendor dispatches so that no two start
// within the configured interval of each other.
package pacing

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the minimum gap between two dispatch starts.
const DefaultInterval = time.Second

// Pacer hands out dispatch slots at least Interval apart.
//
// Slots are reserved under the mutex and the wait happens outside it, so
// concurrent callers queue behind each other's reservations while their
// network round-trips still overlap.
type Pacer struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	clock    Clock
}

// New returns a pacer. A non-positive interval falls back to DefaultInterval
// and a nil clock to the system clock.
func New(interval time.Duration, clock Clock) *Pacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{interval: interval, clock: clock}
}

var (
	defaultPacer     *Pacer
	defaultPacerOnce sync.Once
)

// Default returns the process-wide pacer shared by every vendor client that
// does not carry its own.
func Default() *Pacer {
	defaultPacerOnce.Do(func() {
		defaultPacer = New(DefaultInterval, nil)
	})
	return defaultPacer
}

// Interval returns the configured minimum gap.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Clock returns the clock the pacer measures against.
func (p *Pacer) Clock() Clock {
	if p == nil || p.clock == nil {
		return SystemClock{}
	}
	return p.clock
}

// Wait blocks until the caller may start a dispatch and returns how long it
// waited. The slot is recorded before Wait returns, so the caller's dispatch
// counts as started even while it is still in flight.
//
// If ctx is cancelled during the wait the reserved slot is not released;
// later callers still pace against it.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	if p == nil {
		return 0, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	now := p.clock.Now()
	slot := now
	if !p.last.IsZero() {
		if next := p.last.Add(p.interval); next.After(now) {
			slot = next
		}
	}
	p.last = slot
	p.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return 0, nil
	}
	if err := p.clock.Sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

// Last returns the start time of the most recently reserved slot.
func (p *Pacer) Last() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
