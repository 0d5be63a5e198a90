package stage

import (
	"sync"
	"time"
)

// Ticker abstracts time.Ticker so countdown behavior is testable without
// waiting wall-clock seconds.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }

// Countdown fires tick once per elapsed second until the target time,
// finishing with a zero tick. Cancel stops it early; cancelling twice or
// after completion is harmless.
type Countdown struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func startCountdown(target time.Time, now func() time.Time, newTicker func(time.Duration) Ticker, tick func(remaining int)) *Countdown {
	c := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(c.done)

		remaining := secondsUntil(target, now())
		tick(remaining)
		if remaining <= 0 {
			return
		}

		t := newTicker(time.Second)
		defer t.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-t.C():
				remaining = secondsUntil(target, now())
				tick(remaining)
				if remaining <= 0 {
					return
				}
			}
		}
	}()

	return c
}

// Cancel stops the countdown without a final tick.
func (c *Countdown) Cancel() {
	c.once.Do(func() { close(c.stop) })
}

// Wait blocks until the countdown goroutine exits. Test helper.
func (c *Countdown) Wait() {
	<-c.done
}

func secondsUntil(target, now time.Time) int {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
