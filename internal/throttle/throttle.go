// SPDX-License-Identifier: MIT
// Package throttle paces remote operations with a token-bucket limiter.
// The mirror and publish paths call Wait before every remote call so a
// large hierarchy does not hammer the hosting API.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the default spacing between remote operations.
const DefaultInterval = 100 * time.Millisecond

// Clock abstracts time for the pacer so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer spaces operations at least one interval apart. A nil Pacer or a
// non-positive interval disables pacing.
type Pacer struct {
	limiter *rate.Limiter
	clock   Clock
}

// NewPacer returns a Pacer using the wall clock.
func NewPacer(interval time.Duration) *Pacer {
	return NewPacerWithClock(interval, nil)
}

// NewPacerWithClock returns a Pacer using clk. A nil clk means the wall
// clock.
func NewPacerWithClock(interval time.Duration, clk Clock) *Pacer {
	if clk == nil {
		clk = realClock{}
	}
	if interval <= 0 {
		return &Pacer{clock: clk}
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		clock:   clk,
	}
}

// Wait blocks until the next operation may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		if ctx == nil {
			return nil
		}
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	return p.clock.Sleep(ctx, d)
}
