// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
)

// ResponseStream provides a pull-based iterator over streamed results.
// It wraps a channel internally but exposes a cleaner API with error
// propagation and cleanup guarantees.
//
// A stream is forward-only and cannot be restarted. Callers must call Close
// when they stop consuming early, or use a context with cancellation.
type ResponseStream[T any] struct {
	ch        <-chan T
	errCh     <-chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

// NewResponseStream creates a ResponseStream by running producer in a goroutine.
// The producer should send values to the channel, selecting on ctx.Done, and
// return any error. The channel is closed automatically when the producer
// returns, so resources the producer defers are released on every exit path.
func NewResponseStream[T any](ctx context.Context, producer func(ctx context.Context, ch chan<- T) error) *ResponseStream[T] {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan T)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		if err := producer(ctx, ch); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return &ResponseStream[T]{
		ch:     ch,
		errCh:  errCh,
		cancel: cancel,
		closed: make(chan struct{}),
	}
}

// ErrorStream returns a stream that yields no values and fails with err.
func ErrorStream[T any](err error) *ResponseStream[T] {
	return NewResponseStream(context.Background(), func(context.Context, chan<- T) error { return err })
}

// Next returns the next value from the stream.
// ok is false when the stream is exhausted or closed. err is non-nil on failure.
func (s *ResponseStream[T]) Next(ctx context.Context) (val T, ok bool, err error) {
	var zero T
	select {
	case <-s.closed:
		return zero, false, nil
	default:
	}
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-s.closed:
		return zero, false, nil
	case v, open := <-s.ch:
		if !open {
			// Channel closed, check for producer error
			if e, ok := <-s.errCh; ok {
				s.err = e
			}
			return zero, false, s.err
		}
		return v, true, nil
	}
}

// Collect drains the entire stream and returns all values.
func (s *ResponseStream[T]) Collect(ctx context.Context) ([]T, error) {
	defer s.Close()
	var items []T
	for {
		val, ok, err := s.Next(ctx)
		if err != nil {
			return items, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, val)
	}
}

// All returns a range-over-func iterator over the stream. Breaking out of the
// loop closes the stream. A failure is yielded once as the final pair.
//
//	for fragment, err := range stream.All(ctx) {
//	    if err != nil { ... }
//	}
func (s *ResponseStream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for {
			val, ok, err := s.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(val, nil) {
				return
			}
		}
	}
}

// Close cancels the producer, waits for it to exit and releases resources.
// No values are delivered after Close returns. Safe to call multiple times.
func (s *ResponseStream[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		// Drain remaining items to unblock producer
		for range s.ch {
		}
		if e, ok := <-s.errCh; ok && s.err == nil && !errors.Is(e, context.Canceled) {
			s.err = e
		}
	})
	return nil
}

// Err returns the error the producer finished with, if any.
func (s *ResponseStream[T]) Err() error { return s.err }

// CollectText drains a stream of text fragments and concatenates them.
func CollectText(ctx context.Context, s *ResponseStream[string]) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		frag, ok, err := s.Next(ctx)
		if err != nil {
			return sb.String(), err
		}
		if !ok {
			return sb.String(), nil
		}
		sb.WriteString(frag)
	}
}

// MapStream transforms a ResponseStream[A] into a ResponseStream[B] using fn.
func MapStream[A, B any](ctx context.Context, src *ResponseStream[A], fn func(A) B) *ResponseStream[B] {
	return NewResponseStream(ctx, func(ctx context.Context, ch chan<- B) error {
		defer src.Close()
		for {
			val, ok, err := src.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			select {
			case ch <- fn(val):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
