package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ints(vals ...int) []*int {
	out := make([]*int, len(vals))
	for i := range vals {
		v := vals[i]
		out[i] = &v
	}
	return out
}

func TestRun_SequentialDoubling(t *testing.T) {
	items := ints(1, 2, 3, 4, 5)

	res := Run(context.Background(), items, func(_ context.Context, item *int, _ int) (int, error) {
		return *item * 2, nil
	}, Options{Concurrency: 1})

	require.Empty(t, res.Errors)
	// Concurrency 1 also pins completion order to input order.
	assert.Equal(t, []int{2, 4, 6, 8, 10}, res.Results)
}

func TestRun_SingleFailureDoesNotAbortSiblings(t *testing.T) {
	items := ints(1, 2, 3, 4, 5)

	res := Run(context.Background(), items, func(_ context.Context, item *int, _ int) (int, error) {
		if *item == 3 {
			return 0, errors.New("boom")
		}
		return *item, nil
	}, Options{Concurrency: 2})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Index)
	assert.EqualError(t, res.Errors[0].Err, "boom")
	assert.Len(t, res.Results, 4)
}

func TestRun_ConcurrencyHighWaterMark(t *testing.T) {
	for _, c := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("concurrency=%d", c), func(t *testing.T) {
			items := make([]*int, 30)
			for i := range items {
				v := i
				items[i] = &v
			}

			var active, high int32
			res := Run(context.Background(), items, func(_ context.Context, _ *int, _ int) (struct{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&high)
					if n <= old || atomic.CompareAndSwapInt32(&high, old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return struct{}{}, nil
			}, Options{Concurrency: c})

			assert.Len(t, res.Results, 30)
			assert.LessOrEqual(t, atomic.LoadInt32(&high), int32(c))
		})
	}
}

func TestRun_AccountingAlwaysBalances(t *testing.T) {
	items := ints(0, 1, 2, 3, 4, 5, 6)

	res := Run(context.Background(), items, func(_ context.Context, item *int, _ int) (int, error) {
		if *item%2 == 0 {
			return 0, fmt.Errorf("even: %d", *item)
		}
		return *item, nil
	}, Options{Concurrency: 3})

	assert.Equal(t, len(items), len(res.Results)+len(res.Errors))
}

func TestRun_SkipsHoles(t *testing.T) {
	one, three := 1, 3
	items := []*int{&one, nil, &three, nil}

	var invoked int32
	res := Run(context.Background(), items, func(_ context.Context, item *int, idx int) (int, error) {
		atomic.AddInt32(&invoked, 1)
		return idx, nil
	}, Options{Concurrency: 4})

	assert.Equal(t, int32(2), invoked)
	assert.ElementsMatch(t, []int{0, 2}, res.Results)
	assert.Empty(t, res.Errors)
}

func TestRun_EmptyAndOversizedInputs(t *testing.T) {
	res := Run(context.Background(), nil, func(_ context.Context, _ *int, _ int) (int, error) {
		t.Fatal("work invoked for empty input")
		return 0, nil
	}, Options{Concurrency: 8})
	assert.Empty(t, res.Results)
	assert.Empty(t, res.Errors)

	// Concurrency far above item count is a valid input.
	res = Run(context.Background(), ints(7), func(_ context.Context, item *int, _ int) (int, error) {
		return *item, nil
	}, Options{Concurrency: 64})
	assert.Equal(t, []int{7}, res.Results)
}

func TestRun_ProgressFiresOncePerItemMonotonically(t *testing.T) {
	items := ints(1, 2, 3, 4, 5, 6, 7, 8)

	var mu sync.Mutex
	var counts []int
	var totals []int

	Run(context.Background(), items, func(_ context.Context, item *int, _ int) (int, error) {
		if *item%3 == 0 {
			return 0, errors.New("fail")
		}
		return *item, nil
	}, Options{
		Concurrency: 4,
		OnProgress: func(completed, total int) {
			mu.Lock()
			counts = append(counts, completed)
			totals = append(totals, total)
			mu.Unlock()
		},
	})

	require.Len(t, counts, len(items), "progress must fire once per item, success or failure")
	for i, c := range counts {
		assert.Equal(t, i+1, c, "completed count must be monotonic")
		assert.Equal(t, len(items), totals[i])
	}
}

func TestRun_MemoryThrottleDelaysStarts(t *testing.T) {
	orig := sampleRSS
	defer func() { sampleRSS = orig }()

	var samples int32
	sampleRSS = func() (uint64, error) {
		// First two samples breach the limit, then memory "recovers".
		if atomic.AddInt32(&samples, 1) <= 2 {
			return 2 << 30, nil
		}
		return 1 << 20, nil
	}

	var throttles int32
	var sampledAt, limitAt uint64

	res := Run(context.Background(), ints(1, 2), func(_ context.Context, item *int, _ int) (int, error) {
		return *item, nil
	}, Options{
		Concurrency:    1,
		MaxRSSBytes:    1 << 30,
		SampleInterval: time.Millisecond,
		OnThrottle: func(sampled, limit uint64) {
			atomic.AddInt32(&throttles, 1)
			sampledAt, limitAt = sampled, limit
		},
	})

	assert.Len(t, res.Results, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&throttles), "one breach episode, one callback")
	assert.Equal(t, uint64(2<<30), sampledAt)
	assert.Equal(t, uint64(1<<30), limitAt)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&samples), int32(3))
}

func TestRun_ThrottleNeverCancelsInFlightWork(t *testing.T) {
	orig := sampleRSS
	defer func() { sampleRSS = orig }()
	sampleRSS = func() (uint64, error) { return 2 << 30, nil }

	started := make(chan struct{})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	var finished int32
	done := make(chan Result[int])
	go func() {
		done <- Run(ctx, ints(1, 2), func(_ context.Context, item *int, _ int) (int, error) {
			if *item == 1 {
				close(started)
				<-release
			}
			atomic.AddInt32(&finished, 1)
			return *item, nil
		}, Options{
			Concurrency:    1,
			MaxRSSBytes:    1 << 30,
			SampleInterval: time.Millisecond,
		})
	}()

	<-started
	// Memory is permanently over the limit: item 2 must be withheld while
	// item 1 keeps running untouched.
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&finished))

	close(release)
	cancel() // unblocks the throttle wait for item 2

	res := <-done
	assert.Equal(t, 2, len(res.Results)+len(res.Errors))
}

func TestResult_FirstError(t *testing.T) {
	ok := Result[int]{}
	assert.NoError(t, ok.FirstError())

	res := Result[int]{Errors: []IndexedError{
		{Index: 4, Err: errors.New("later")},
		{Index: 1, Err: errors.New("earlier")},
	}}
	err := res.FirstError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	assert.Contains(t, err.Error(), "earlier")
}
