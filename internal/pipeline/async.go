package pipeline

import (
	"context"
	"fmt"
)

const DefaultConcurrency = 10

type result[T any] struct {
	val T
	ok  bool
	err error
}

// AsyncMap runs fn on up to n values at once and yields results in input order.
// When fn fails the input passes through unchanged and onError observes the failure;
// only source errors end the stream.
func AsyncMap[T any](p *Pipeline[T], n int, fn func(context.Context, T) (T, error), onError func(T, error)) *Pipeline[T] {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Pipeline[T]{create: func(ctx context.Context) Iterator[T] {
		source := p.create(ctx)
		workCtx, cancel := context.WithCancel(ctx)
		slots := make(chan chan result[T], n)
		sem := make(chan struct{}, n)
		done := make(chan struct{})

		go func() {
			defer close(done)
			defer close(slots)
			for {
				select {
				case sem <- struct{}{}:
				case <-workCtx.Done():
					return
				}
				v, ok, err := next(workCtx, source)
				if err != nil || !ok {
					<-sem
					if err != nil {
						slot := make(chan result[T], 1)
						slot <- result[T]{err: err}
						select {
						case slots <- slot:
						case <-workCtx.Done():
						}
					}
					return
				}

				slot := make(chan result[T], 1)
				select {
				case slots <- slot:
				case <-workCtx.Done():
					<-sem
					return
				}
				go func() {
					defer func() { <-sem }()
					out, err := call(workCtx, fn, v)
					if err != nil {
						if onError != nil {
							onError(v, err)
						}
						out = v
					}
					slot <- result[T]{val: out, ok: true}
				}()
			}
		}()

		return &asyncIter[T]{
			slots: slots,
			closer: func() error {
				cancel()
				<-done
				return source.Close()
			},
		}
	}}
}

// call converts a panic in fn into an error so the value passes through.
func call[T any](ctx context.Context, fn func(context.Context, T) (T, error), v T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async map: panic: %v", r)
		}
	}()
	return fn(ctx, v)
}

// next runs the upstream stages on the feeder goroutine, so a panic there
// must end the stream as an error.
func next[T any](ctx context.Context, it Iterator[T]) (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("async map source: panic: %v", r)
		}
	}()
	return it.Next(ctx)
}

type asyncIter[T any] struct {
	slots  <-chan chan result[T]
	closer func() error
}

func (it *asyncIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case slot, open := <-it.slots:
		if !open {
			return zero, false, nil
		}
		select {
		case r := <-slot:
			return r.val, r.ok, r.err
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (it *asyncIter[T]) Close() error { return it.closer() }
