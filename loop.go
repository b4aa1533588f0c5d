/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Loop runs every room mutation on a single goroutine. Connection handlers,
// HTTP endpoints and timer callbacks hand work to it instead of touching
// rooms directly.
type Loop struct {
	tasks   chan func()
	stopped chan struct{}
}

func NewLoop(backlog int) *Loop {
	return &Loop{
		tasks:   make(chan func(), backlog),
		stopped: make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn without waiting for it to run. Tasks posted after the loop
// has stopped are dropped. Post must not be called from the loop goroutine.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.stopped:
	}
}

// Do queues fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	select {
	case l.tasks <- func() { fn(); close(done) }:
	case <-l.stopped:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler arms deferred callbacks that run on the loop. Callbacks must
// re-check whatever state they captured, since a cancelled timer may
// already have queued its task.
type Scheduler struct {
	clock clockwork.Clock
	loop  *Loop
}

func NewScheduler(clock clockwork.Clock, loop *Loop) *Scheduler {
	return &Scheduler{clock: clock, loop: loop}
}

func (s *Scheduler) After(d time.Duration, fn func()) clockwork.Timer {
	return s.clock.AfterFunc(d, func() {
		s.loop.Post(fn)
	})
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}
