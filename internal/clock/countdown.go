// Package clock provides the whole-second exam countdown.
package clock

import (
	"context"
	"fmt"
	"time"
)

// LowTimeThreshold is the remaining time below which a session warns the student.
const LowTimeThreshold = 300

// Event is emitted once per tick. The event with Expired set is always the last one.
type Event struct {
	Remaining int
	Expired   bool
}

// TickSource supplies tick instants and a stop function.
type TickSource func() (<-chan time.Time, func())

// SecondTicker is the production tick source.
func SecondTicker() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Second)
	return t.C, t.Stop
}

// Countdown counts down from a positive number of seconds, one per tick.
type Countdown struct {
	start  int
	events chan Event
	source TickSource
}

// NewCountdown returns a countdown over seconds using the given tick source.
// A nil source uses SecondTicker.
func NewCountdown(seconds int, source TickSource) (*Countdown, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("countdown duration must be positive, got %d", seconds)
	}
	if source == nil {
		source = SecondTicker
	}
	return &Countdown{
		start:  seconds,
		events: make(chan Event),
		source: source,
	}, nil
}

// Duration returns the starting number of seconds.
func (c *Countdown) Duration() int { return c.start }

// Events returns the channel the single subscriber reads from. It is closed
// after the Expired event, or when Run returns because ctx was cancelled.
func (c *Countdown) Events() <-chan Event { return c.events }

// Run drives the countdown until it expires or ctx is cancelled.
// Delivery blocks on the subscriber, so ticks are never coalesced.
func (c *Countdown) Run(ctx context.Context) {
	defer close(c.events)

	ticks, stop := c.source()
	defer stop()

	remaining := c.start
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
		}
		remaining--
		ev := Event{Remaining: remaining, Expired: remaining == 0}
		select {
		case <-ctx.Done():
			return
		case c.events <- ev:
		}
	}
}

// Format renders seconds as m:ss, e.g. 125 -> "2:05".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// LowTime reports whether the remaining time should trigger a warning.
func LowTime(seconds int) bool {
	return seconds < LowTimeThreshold
}
