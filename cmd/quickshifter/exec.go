package main

import (
	"context"
	"errors"
	"sync"
)

var errLoopStopped = errors.New("control loop stopped")

type execReq struct {
	fn   func()
	done chan struct{}
}

// loopExec hands functions to runLoop, which runs them between ticks.
type loopExec struct {
	reqs     chan execReq
	stopped  chan struct{}
	stopOnce sync.Once
}

func newLoopExec() *loopExec {
	return &loopExec{
		reqs:    make(chan execReq),
		stopped: make(chan struct{}),
	}
}

// Exec implements web.Executor.
func (e *loopExec) Exec(ctx context.Context, fn func()) error {
	req := execReq{fn: fn, done: make(chan struct{})}
	select {
	case e.reqs <- req:
	case <-e.stopped:
		return errLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *loopExec) stop() {
	e.stopOnce.Do(func() { close(e.stopped) })
}
