// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"fmt"
)

// Task is a handle to a tool invocation that settles exactly once. Tools that
// return immediately and tools that complete in the background both hand back
// a Task, so callers always wait on the same kind of value.
type Task struct {
	done   chan struct{}
	result any
	err    error
}

// NewTask runs fn in its own goroutine and returns a handle to its outcome.
// A panic inside fn settles the task with an [ErrToolExecution] error.
func NewTask(ctx context.Context, fn func(ctx context.Context) (any, error)) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.result, t.err = runRecovered(ctx, fn)
	}()
	return t
}

// CompletedTask returns an already settled task.
func CompletedTask(result any, err error) *Task {
	t := &Task{done: make(chan struct{}), result: result, err: err}
	close(t.done)
	return t
}

// RunTask runs fn on the calling goroutine and returns the settled task.
func RunTask(ctx context.Context, fn func(ctx context.Context) (any, error)) *Task {
	result, err := runRecovered(ctx, fn)
	return CompletedTask(result, err)
}

// Done is closed once the task has settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task settles or ctx is done. A cancelled wait does not
// stop the underlying work; its result is simply not observed.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runRecovered(ctx context.Context, fn func(ctx context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrToolExecution, r)
		}
	}()
	return fn(ctx)
}
