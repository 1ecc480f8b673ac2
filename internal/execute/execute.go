// Package execute runs one function over many items sequentially, on a
// fixed pool of worker goroutines, or with one goroutine per item.
//
// Per-item errors are logged and the item is left out of the results. A
// panic in any worker fails the whole batch with failure.ErrPartialFailure.
// Workers only compute; callers write output once all results are back.
package execute

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/monitoring"
)

// Mode selects how items are scheduled.
type Mode int

const (
	ModeSequential Mode = iota
	ModeMultiprocessing
	ModeConcurrent
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeMultiprocessing:
		return "multiprocessing"
	case ModeConcurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Options configures Run.
type Options[Out any] struct {
	Mode Mode
	// Workers bounds parallelism. Values below 1 mean runtime.NumCPU().
	Workers int
	// Label names the batch in log lines.
	Label string
	// Valid filters results; nil keeps everything that did not error.
	Valid func(Out) bool
}

// Workers resolves a requested process count: -1 or 0 means all CPUs.
func Workers(requested int) int {
	if requested < 1 {
		return runtime.NumCPU()
	}
	return requested
}

type outcome[Out any] struct {
	index int
	value Out
	err   error
}

// Run applies fn to every item and returns the results that succeeded and
// passed opts.Valid. Sequential mode keeps input order; parallel modes
// return results in completion order.
func Run[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), items []In, opts Options[Out]) ([]Out, error) {
	label := opts.Label
	if label == "" {
		label = "batch"
	}
	workers := Workers(opts.Workers)
	monitoring.Diagf("%s: %d items, mode %s, %d workers", label, len(items), opts.Mode, workers)

	var outcomes []outcome[Out]
	var err error
	switch opts.Mode {
	case ModeSequential:
		outcomes, err = runSequential(ctx, fn, items)
	case ModeMultiprocessing:
		outcomes, err = runPool(ctx, fn, items, workers)
	case ModeConcurrent:
		outcomes, err = runGroup(ctx, fn, items, workers)
	default:
		return nil, failure.Inputf("unknown execution mode %d", int(opts.Mode))
	}
	if err != nil {
		monitoring.Opsf("%s: %v", label, err)
		return nil, err
	}

	results := make([]Out, 0, len(outcomes))
	skipped := 0
	for _, o := range outcomes {
		if o.err != nil {
			skipped++
			monitoring.Opsf("%s: item %d skipped: %v", label, o.index, o.err)
			continue
		}
		if opts.Valid != nil && !opts.Valid(o.value) {
			skipped++
			continue
		}
		results = append(results, o.value)
	}
	if skipped > 0 {
		monitoring.Opsf("%s: %d of %d items produced no result", label, skipped, len(items))
	}
	return results, nil
}

// call runs fn and converts a panic into a batch failure.
func call[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), item In, index int) (o outcome[Out], panicked error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = fmt.Errorf("%w: panic in item %d: %v", failure.ErrPartialFailure, index, r)
		}
	}()
	v, err := fn(ctx, item)
	return outcome[Out]{index: index, value: v, err: err}, nil
}

func runSequential[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), items []In) ([]outcome[Out], error) {
	out := make([]outcome[Out], 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, perr := call(ctx, fn, item, i)
		if perr != nil {
			return nil, perr
		}
		out = append(out, o)
	}
	return out, nil
}

func runPool[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), items []In, workers int) ([]outcome[Out], error) {
	jobs := make(chan int)
	results := make(chan outcome[Out], len(items))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		panicErr error
	)
	for w := 0; w < min(workers, max(len(items), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o, perr := call(ctx, fn, items[i], i)
				if perr != nil {
					mu.Lock()
					if panicErr == nil {
						panicErr = perr
					}
					mu.Unlock()
					continue
				}
				results <- o
			}
		}()
	}

feed:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	if panicErr != nil {
		return nil, panicErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]outcome[Out], 0, len(items))
	for o := range results {
		out = append(out, o)
	}
	return out, nil
}

func runGroup[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), items []In, workers int) ([]outcome[Out], error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	out := make([]outcome[Out], 0, len(items))
	for i, item := range items {
		g.Go(func() error {
			o, perr := call(gctx, fn, item, i)
			if perr != nil {
				return perr
			}
			mu.Lock()
			out = append(out, o)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
