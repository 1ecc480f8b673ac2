package execute

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/failure"
)

var allModes = []Mode{ModeSequential, ModeMultiprocessing, ModeConcurrent}

func square(_ context.Context, v int) (int, error) {
	return v * v, nil
}

func TestRun_AllModesProduceSameResults(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			got, err := Run(context.Background(), square, items, Options[int]{Mode: mode, Workers: 3})
			require.NoError(t, err)
			sort.Ints(got)
			assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, got)
		})
	}
}

func TestRun_SequentialKeepsOrder(t *testing.T) {
	t.Parallel()

	got, err := Run(context.Background(), square, []int{3, 1, 2}, Options[int]{Mode: ModeSequential})
	require.NoError(t, err)
	assert.Equal(t, []int{9, 1, 4}, got)
}

func TestRun_ItemErrorsAreSkipped(t *testing.T) {
	t.Parallel()

	odd := errors.New("odd")
	fn := func(_ context.Context, v int) (int, error) {
		if v%2 == 1 {
			return 0, failure.Skip(failure.SkipNoCorridor, odd)
		}
		return v, nil
	}
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			got, err := Run(context.Background(), fn, []int{1, 2, 3, 4}, Options[int]{Mode: mode, Workers: 2})
			require.NoError(t, err)
			sort.Ints(got)
			assert.Equal(t, []int{2, 4}, got)
		})
	}
}

func TestRun_ValidFilter(t *testing.T) {
	t.Parallel()

	got, err := Run(context.Background(), square, []int{1, 2, 3}, Options[int]{
		Mode:  ModeSequential,
		Valid: func(v int) bool { return v > 1 },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, got)
}

func TestRun_PanicFailsBatch(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, v int) (int, error) {
		if v == 3 {
			panic("boom")
		}
		return v, nil
	}
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			got, err := Run(context.Background(), fn, []int{1, 2, 3, 4}, Options[int]{Mode: mode, Workers: 2})
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, failure.ErrPartialFailure), "err = %v", err)
		})
	}
}

func TestRun_WorkersBounded(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeMultiprocessing, ModeConcurrent} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			var active, peak int64
			fn := func(_ context.Context, v int) (int, error) {
				n := atomic.AddInt64(&active, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				atomic.AddInt64(&active, -1)
				return v, nil
			}
			items := make([]int, 50)
			_, err := Run(context.Background(), fn, items, Options[int]{Mode: mode, Workers: 2})
			require.NoError(t, err)
			assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, mode := range allModes {
		_, err := Run(ctx, square, []int{1, 2}, Options[int]{Mode: mode})
		assert.ErrorIs(t, err, context.Canceled, mode.String())
	}
}

func TestRun_UnknownMode(t *testing.T) {
	t.Parallel()
	_, err := Run(context.Background(), square, []int{1}, Options[int]{Mode: Mode(42)})
	assert.True(t, errors.Is(err, failure.ErrInput))
}

func TestWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4, Workers(4))
	assert.Positive(t, Workers(-1))
	assert.Positive(t, Workers(0))
}
