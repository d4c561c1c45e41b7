// Package execution selects between serial and parallel evaluation of the
// per-page work. Both variants produce the same result for associative and
// commutative merges; only scheduling differs.
package execution

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

type Strategy interface {
	Parallel() bool
	// ForEach calls fn for every index in [0, n). The parallel variant gives
	// no ordering guarantee and stops scheduling after the first error.
	ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// New returns the parallel strategy when parallel is set, the serial one otherwise.
func New(parallel bool, workers int) Strategy {
	if parallel {
		if workers <= 0 {
			workers = 4
		}
		return &parallelStrategy{workers: workers}
	}
	return serialStrategy{}
}

type serialStrategy struct{}

func (serialStrategy) Parallel() bool { return false }

func (serialStrategy) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

type parallelStrategy struct {
	workers int
}

func (p *parallelStrategy) Parallel() bool { return true }

func (p *parallelStrategy) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// MergeMap accumulates values per key, folding collisions with a merge function.
type MergeMap[K comparable, V any] interface {
	Merge(key K, value V)
	Get(key K) (V, bool)
	Len() int
	Range(fn func(key K, value V) bool)
}

// NewMergeMap builds the map variant matching the strategy: a concurrent map
// for the parallel strategy, a plain map for the serial one.
func NewMergeMap[K comparable, V any](s Strategy, merge func(a, b V) V) MergeMap[K, V] {
	if s.Parallel() {
		return &concurrentMergeMap[K, V]{m: xsync.NewMap[K, V](), merge: merge}
	}
	return &plainMergeMap[K, V]{m: make(map[K]V), merge: merge}
}

type plainMergeMap[K comparable, V any] struct {
	m     map[K]V
	merge func(a, b V) V
}

func (p *plainMergeMap[K, V]) Merge(key K, value V) {
	if cur, ok := p.m[key]; ok {
		p.m[key] = p.merge(cur, value)
		return
	}
	p.m[key] = value
}

func (p *plainMergeMap[K, V]) Get(key K) (V, bool) {
	v, ok := p.m[key]
	return v, ok
}

func (p *plainMergeMap[K, V]) Len() int { return len(p.m) }

func (p *plainMergeMap[K, V]) Range(fn func(key K, value V) bool) {
	for k, v := range p.m {
		if !fn(k, v) {
			return
		}
	}
}

type concurrentMergeMap[K comparable, V any] struct {
	m     *xsync.Map[K, V]
	merge func(a, b V) V
}

func (c *concurrentMergeMap[K, V]) Merge(key K, value V) {
	c.m.Compute(key, func(old V, loaded bool) (V, xsync.ComputeOp) {
		if !loaded {
			return value, xsync.UpdateOp
		}
		return c.merge(old, value), xsync.UpdateOp
	})
}

func (c *concurrentMergeMap[K, V]) Get(key K) (V, bool) {
	return c.m.Load(key)
}

func (c *concurrentMergeMap[K, V]) Len() int { return c.m.Size() }

func (c *concurrentMergeMap[K, V]) Range(fn func(key K, value V) bool) {
	c.m.Range(fn)
}

// GroupMerge folds items into one value per key.
func GroupMerge[T any, K comparable](ctx context.Context, s Strategy, items []T, key func(T) K, merge func(a, b T) T) (MergeMap[K, T], error) {
	out := NewMergeMap[K, T](s, merge)
	err := s.ForEach(ctx, len(items), func(_ context.Context, i int) error {
		out.Merge(key(items[i]), items[i])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Produce evaluates fn for every index and returns the results in index order,
// whatever order the strategy ran them in.
func Produce[T any](ctx context.Context, s Strategy, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	err := s.ForEach(ctx, n, func(ctx context.Context, i int) error {
		v, err := fn(ctx, i)
		if err != nil {
			return err
		}
		out[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
