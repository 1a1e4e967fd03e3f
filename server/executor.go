package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStopped is returned for jobs submitted to, or still waiting on, a
	// stopped Executor.
	ErrStopped = errors.New("engine executor stopped")
	// ErrEnginePanic wraps a panic raised inside a job.
	ErrEnginePanic = errors.New("engine job panicked")
)

type outcome struct {
	value any
	err   error
}

// job is one piece of work run against the Engine. A job whose context is
// already done when its turn comes is skipped.
type job struct {
	ctx  context.Context
	run  func(*Engine) (any, error)
	done chan outcome
}

// Executor owns an Engine and runs jobs against it one at a time on a
// dedicated goroutine. The compiler and runtime are not safe for
// concurrent use, so every LSP and RPC handler reaches the Engine through
// Submit.
type Executor struct {
	engine   *Engine
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
}

// NewExecutor starts an Executor for e.
func NewExecutor(e *Engine) *Executor {
	x := &Executor{
		engine: e,
		jobs:   make(chan job, 64),
		quit:   make(chan struct{}),
	}
	go x.loop()
	return x
}

func (x *Executor) loop() {
	for {
		select {
		case j := <-x.jobs:
			j.done <- x.runJob(j)
		case <-x.quit:
			return
		}
	}
}

func (x *Executor) runJob(j job) (o outcome) {
	if err := j.ctx.Err(); err != nil {
		return outcome{err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("engine job panicked: %v", r)
			o = outcome{err: fmt.Errorf("%w: %v", ErrEnginePanic, r)}
		}
	}()
	o.value, o.err = j.run(x.engine)
	return o
}

func (x *Executor) submit(ctx context.Context, fn func(*Engine) (any, error)) (any, error) {
	j := job{ctx: ctx, run: fn, done: make(chan outcome, 1)}
	select {
	case x.jobs <- j:
	case <-x.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case o := <-j.done:
		return o.value, o.err
	case <-x.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop ends the executor goroutine. Jobs still queued fail with ErrStopped.
// Calling Stop more than once is safe.
func (x *Executor) Stop() {
	x.stopOnce.Do(func() { close(x.quit) })
}

// Submit runs fn on x's goroutine and waits for its result, for ctx to end,
// or for x to stop.
func Submit[T any](ctx context.Context, x *Executor, fn func(*Engine) (T, error)) (T, error) {
	v, err := x.submit(ctx, func(e *Engine) (any, error) { return fn(e) })
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
