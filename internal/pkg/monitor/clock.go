package monitor

import (
	"context"
	"time"
)

// Clock returns current time
type Clock interface {
	Now() time.Time
}

// Waiter suspends the loop until the time
type Waiter interface {
	WaitUntil(ctx context.Context, at time.Time) error
}

type realClock struct{}

// RealClock returns system time
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// TimerWaiter blocks on a timer
type TimerWaiter struct{}

// WaitUntil waits until at or ctx is done
func (TimerWaiter) WaitUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
