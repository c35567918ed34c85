package pipeline

import (
	"context"
)

// Map applies a 1 to 0..1 transform. Returning ok=false drops the value.
func Map[I, O any](p *Pipeline[I], fn func(context.Context, I) (O, bool, error)) *Pipeline[O] {
	return &Pipeline[O]{create: func(ctx context.Context) Iterator[O] {
		return &mapIter[I, O]{source: p.create(ctx), fn: fn}
	}}
}

// FlatMap applies a 1 to 0..N transform.
func FlatMap[I, O any](p *Pipeline[I], fn func(context.Context, I) ([]O, error)) *Pipeline[O] {
	return &Pipeline[O]{create: func(ctx context.Context) Iterator[O] {
		return &flatMapIter[I, O]{source: p.create(ctx), fn: fn}
	}}
}

// Tap observes each value without changing it.
func Tap[T any](p *Pipeline[T], fn func(context.Context, T)) *Pipeline[T] {
	return Map(p, func(ctx context.Context, v T) (T, bool, error) {
		fn(ctx, v)
		return v, true, nil
	})
}

// Concat yields every value of each pipeline in turn.
func Concat[T any](pipelines ...*Pipeline[T]) *Pipeline[T] {
	return &Pipeline[T]{create: func(ctx context.Context) Iterator[T] {
		return &concatIter[T]{ctx: ctx, pipelines: pipelines}
	}}
}

// Accumulator is a full-stream reducer. Flush runs once, after the input is drained.
type Accumulator[I, O any] interface {
	Add(I)
	Flush() []O
}

// Accumulate buffers the whole input before emitting anything.
func Accumulate[I, O any](p *Pipeline[I], acc Accumulator[I, O]) *Pipeline[O] {
	return &Pipeline[O]{create: func(ctx context.Context) Iterator[O] {
		return &accumulateIter[I, O]{source: p.create(ctx), acc: acc}
	}}
}

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, bool, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	for {
		v, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		out, keep, err := it.fn(ctx, v)
		if err != nil {
			return zero, false, err
		}
		if keep {
			return out, true, nil
		}
	}
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }

type flatMapIter[I, O any] struct {
	source  Iterator[I]
	fn      func(context.Context, I) ([]O, error)
	pending []O
}

func (it *flatMapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	for len(it.pending) == 0 {
		v, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		if it.pending, err = it.fn(ctx, v); err != nil {
			return zero, false, err
		}
	}
	out := it.pending[0]
	it.pending = it.pending[1:]
	return out, true, nil
}

func (it *flatMapIter[I, O]) Close() error { return it.source.Close() }

type concatIter[T any] struct {
	ctx       context.Context
	pipelines []*Pipeline[T]
	current   Iterator[T]
	index     int
}

func (it *concatIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		if it.current == nil {
			if it.index >= len(it.pipelines) {
				return zero, false, nil
			}
			it.current = it.pipelines[it.index].create(it.ctx)
			it.index++
		}
		v, ok, err := it.current.Next(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
		if err := it.current.Close(); err != nil {
			return zero, false, err
		}
		it.current = nil
	}
}

func (it *concatIter[T]) Close() error {
	if it.current != nil {
		return it.current.Close()
	}
	return nil
}

type accumulateIter[I, O any] struct {
	source  Iterator[I]
	acc     Accumulator[I, O]
	flushed bool
	out     []O
}

func (it *accumulateIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	if !it.flushed {
		for {
			v, ok, err := it.source.Next(ctx)
			if err != nil {
				return zero, false, err
			}
			if !ok {
				break
			}
			it.acc.Add(v)
		}
		it.out = it.acc.Flush()
		it.flushed = true
	}
	if len(it.out) == 0 {
		return zero, false, nil
	}
	v := it.out[0]
	it.out = it.out[1:]
	return v, true, nil
}

func (it *accumulateIter[I, O]) Close() error { return it.source.Close() }
