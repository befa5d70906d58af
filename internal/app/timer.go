package app

import (
	"sync"
	"time"

	"yacht/internal/domain"
)

// Countdown ticks once per interval until it runs out or is stopped.
// Callbacks run on the countdown's goroutine and receive the countdown
// itself so the owner can discard callbacks from one it already replaced.
type Countdown struct {
	Kind domain.TimerKind

	done chan struct{}
	once sync.Once
}

// StartCountdown begins counting down duration in steps of tick. onTick is
// called with the steps remaining after each tick; onExpire replaces the
// final tick.
func StartCountdown(kind domain.TimerKind, duration, tick time.Duration,
	onTick func(c *Countdown, remaining int), onExpire func(c *Countdown)) *Countdown {
	c := &Countdown{
		Kind: kind,
		done: make(chan struct{}),
	}
	steps := int(duration / tick)
	go c.run(steps, tick, onTick, onExpire)
	return c
}

func (c *Countdown) run(steps int, tick time.Duration, onTick func(*Countdown, int), onExpire func(*Countdown)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	remaining := steps
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			remaining--
			if remaining <= 0 {
				c.Stop()
				onExpire(c)
				return
			}
			onTick(c, remaining)
		}
	}
}

// Stop cancels the countdown. It never blocks and is safe to call twice.
func (c *Countdown) Stop() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

// Stopped reports whether the countdown was stopped or expired
func (c *Countdown) Stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
