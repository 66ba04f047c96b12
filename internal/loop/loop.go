// Package loop runs a session's callbacks one at a time on a single
// goroutine. Transport readers, timers and public entry points post work
// onto the loop instead of touching session state directly.
package loop

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"
)

const queueSize = 256

// ErrStopped is returned by Do when the loop has exited.
var ErrStopped = errors.New("loop stopped")

// Clock is the subset of k8s.io/utils/clock the loop needs.
type Clock interface {
	clock.PassiveClock
	AfterFunc(d time.Duration, f func()) clock.Timer
}

// Loop is a serial executor.
type Loop struct {
	clock Clock
	queue chan func()
	done  chan struct{}
}

// New creates a loop. Call Run to start executing posted work.
func New(clk Clock) *Loop {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Loop{
		clock: clk,
		queue: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock { return l.clock }

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.queue:
			f()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues f. It blocks while the queue is full and returns false if
// the loop has exited.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- f:
		return true
	case <-l.done:
		return false
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is a one-shot callback bound to a loop. Stop must be called from
// the loop; a firing that is already queued when Stop runs is discarded.
type Timer struct {
	timer   clock.Timer
	stopped bool
}

// AfterFunc runs f on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			f()
		})
	})
	return t
}

// Stop cancels the timer. It reports whether the callback was still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

// Pending reports whether the callback has neither fired nor been stopped.
func (t *Timer) Pending() bool {
	return t != nil && !t.stopped
}

// Periodic calls a function on the loop every period until stopped.
// Reset changes the period and restarts the cycle; no tick scheduled
// under the old period is delivered afterwards.
type Periodic struct {
	loop    *Loop
	period  time.Duration
	fn      func()
	next    *Timer
	stopped bool
}

// Every starts a periodic task. The first call happens one period from now.
func (l *Loop) Every(period time.Duration, fn func()) *Periodic {
	p := &Periodic{loop: l, period: period, fn: fn}
	p.arm()
	return p
}

func (p *Periodic) arm() {
	p.next = p.loop.AfterFunc(p.period, p.fire)
}

func (p *Periodic) fire() {
	if p.stopped {
		return
	}
	p.arm()
	p.fn()
}

// Period returns the current period.
func (p *Periodic) Period() time.Duration { return p.period }

// Reset cancels the pending tick and restarts with a new period.
func (p *Periodic) Reset(period time.Duration) {
	if p.stopped {
		return
	}
	p.next.Stop()
	p.period = period
	p.arm()
}

// Stop ends the task. Safe to call on a nil or already stopped task.
func (p *Periodic) Stop() {
	if p == nil || p.stopped {
		return
	}
	p.stopped = true
	p.next.Stop()
}

// Active reports whether the task is still running.
func (p *Periodic) Active() bool {
	return p != nil && !p.stopped
}
