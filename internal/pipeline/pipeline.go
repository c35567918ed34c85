// Package pipeline composes lazy, pull-based stages over feature streams.
// No work happens until a terminal such as Drain or Collect pulls values.
package pipeline

import (
	"context"
	"iter"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns (zero, false, nil) once the stream is exhausted.
	Next(ctx context.Context) (T, bool, error)
	Close() error
}

type Pipeline[T any] struct {
	create func(ctx context.Context) Iterator[T]
}

func From[T any](it Iterator[T]) *Pipeline[T] {
	return &Pipeline[T]{create: func(context.Context) Iterator[T] { return it }}
}

func FromFunc[T any](fn func(ctx context.Context) Iterator[T]) *Pipeline[T] {
	return &Pipeline[T]{create: fn}
}

func FromSlice[T any](items []T) *Pipeline[T] {
	return &Pipeline[T]{create: func(context.Context) Iterator[T] { return &sliceIter[T]{items: items} }}
}

// FromSeq adapts a push sequence. The sequence is consumed lazily.
func FromSeq[T any](seq iter.Seq[T]) *Pipeline[T] {
	return &Pipeline[T]{create: func(context.Context) Iterator[T] {
		next, stop := iter.Pull(seq)
		return &seqIter[T]{next: next, stop: stop}
	}}
}

func (p *Pipeline[T]) Iter(ctx context.Context) Iterator[T] { return p.create(ctx) }

// Drain pulls every value into sink and stops at the first error.
func Drain[T any](ctx context.Context, p *Pipeline[T], sink func(context.Context, T) error) error {
	it := p.create(ctx)
	defer it.Close()
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := sink(ctx, v); err != nil {
			return err
		}
	}
}

func Collect[T any](ctx context.Context, p *Pipeline[T]) ([]T, error) {
	var out []T
	err := Drain(ctx, p, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	v := it.items[it.index]
	it.index++
	return v, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type seqIter[T any] struct {
	next func() (T, bool)
	stop func()
}

func (it *seqIter[T]) Next(ctx context.Context) (T, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, false, err
	}
	v, ok := it.next()
	return v, ok, nil
}

func (it *seqIter[T]) Close() error {
	it.stop()
	return nil
}
