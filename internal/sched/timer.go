package sched

import (
	"fmt"
	"time"

	"github.com/dshills/lumen/internal/bridge"
)

// timer is a deferred, optionally repeating callback.
type timer struct {
	interval time.Duration
	last     time.Time
	fn       func() (repeat bool, err error)
	release  func()
	removed  bool
}

func (t *timer) dispose() {
	if t.removed {
		return
	}
	t.removed = true
	if t.release != nil {
		t.release()
	}
}

// Timer is a handle to a scheduled callback.
type Timer struct {
	s *Scheduler
	t *timer
}

// Timeout schedules fn to run interval from now. fn is called again after
// each further interval for as long as it returns true. release runs once
// when the timer is discarded.
func (s *Scheduler) Timeout(interval time.Duration, fn func() (bool, error), release func()) (*Timer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: timeout interval must be positive, got %v", bridge.ErrArgument, interval)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: timeout needs a callback", bridge.ErrArgument)
	}
	t := &timer{interval: interval, last: s.opts.Now(), fn: fn, release: release}
	s.timers = append(s.timers, t)
	return &Timer{s: s, t: t}, nil
}

// Cancel discards the timer without running it again.
func (t *Timer) Cancel() {
	t.s.removeTimer(t.t)
}

// Active reports whether the timer is still scheduled.
func (t *Timer) Active() bool { return !t.t.removed }

func (s *Scheduler) removeTimer(t *timer) {
	for i, x := range s.timers {
		if x == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			break
		}
	}
	t.dispose()
}
