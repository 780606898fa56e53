// Package sched provides the one-shot delayed-call scheduler used for
// maintenance ticks and the key-check-to-key-generation timer.
// time.AfterFunc is the direct standard-library primitive for a single
// pending call and needs no third-party scheduler, so it is used here
// directly rather than reimplementing a timer wheel.
package sched

import "time"

// Scheduler arms one-shot calls at an absolute time or after a delay.
// The zero value is ready to use.
type Scheduler struct{}

// New returns a ready Scheduler.
func New() *Scheduler { return &Scheduler{} }

// Put arranges for fn to run at at, returning the underlying timer so
// the caller can Stop it to cancel.
func (s *Scheduler) Put(fn func(), at time.Time) *time.Timer {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, fn)
}

// PutAfter arranges for fn to run after d elapses.
func (s *Scheduler) PutAfter(fn func(), d time.Duration) *time.Timer {
	return time.AfterFunc(d, fn)
}
