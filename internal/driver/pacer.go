package driver

import (
	"context"
	"time"
)

// Clock is the time source used for pacing. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pacer keeps the printer from being fed faster than its mechanism can
// advance paper. speed is in cm/s; zero disables pacing.
type pacer struct {
	clock Clock
	speed float64
	last  time.Time
}

func newPacer(clock Clock, speed float64) *pacer {
	return &pacer{clock: clock, speed: speed, last: clock.Now()}
}

// Reset restarts the measurement from now.
func (p *pacer) Reset() {
	p.last = p.clock.Now()
}

// Delay blocks until printing lengthCm at the configured speed would have
// finished, measured from the previous paced operation.
func (p *pacer) Delay(ctx context.Context, lengthCm float64) error {
	if p.speed <= 0 {
		return nil
	}
	required := time.Duration(lengthCm / p.speed * float64(time.Second))
	if wait := required - p.clock.Now().Sub(p.last); wait > 0 {
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	p.last = p.clock.Now()
	return nil
}
