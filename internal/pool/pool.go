// Package pool runs a work function over a collection of items with a
// concurrency ceiling and optional memory-based backpressure.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultSampleInterval is how often resident memory is re-sampled while
// the pool is withholding new starts.
const defaultSampleInterval = 250 * time.Millisecond

// Options configures a single Run invocation.
type Options struct {
	// Concurrency is the maximum number of in-flight work invocations.
	// Values below 1 are treated as 1.
	Concurrency int

	// MaxRSSBytes, when non-zero, withholds starting new work while the
	// process's resident memory exceeds this many bytes. In-flight work is
	// never cancelled; only the rate of new starts is affected.
	MaxRSSBytes uint64

	// SampleInterval is the delay between memory samples while throttled.
	// Zero means a default of 250ms.
	SampleInterval time.Duration

	// OnProgress, if set, fires exactly once per completed item (success
	// or failure), with a monotonically increasing completed count.
	OnProgress func(completed, total int)

	// OnThrottle, if set, fires once per observed memory breach, when the
	// pool transitions from starting work to withholding it.
	OnThrottle func(sampledBytes, limitBytes uint64)
}

// IndexedError pairs a failed item's input index with its error.
type IndexedError struct {
	Index int
	Err   error
}

// Result collects per-item outcomes from one Run invocation. Results hold
// successful values in completion order; callers needing correspondence with
// the input must embed the index or an id inside R. Errors never abort
// sibling items.
type Result[R any] struct {
	Results []R
	Errors  []IndexedError
}

// FirstError returns the lowest-indexed error, or nil when every item
// succeeded. Useful for callers that only need run-level success.
func (r *Result[R]) FirstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	for _, e := range r.Errors[1:] {
		if e.Index < first.Index {
			first = e
		}
	}
	return fmt.Errorf("item %d: %w", first.Index, first.Err)
}

// Run invokes work for every non-nil item in items, keeping at most
// opts.Concurrency invocations in flight. Nil entries are holes and are
// skipped without invoking work. Run returns only after every started
// invocation has settled.
func Run[T any, R any](ctx context.Context, items []*T, work func(ctx context.Context, item *T, index int) (R, error), opts Options) Result[R] {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	total := 0
	for _, it := range items {
		if it != nil {
			total++
		}
	}

	var (
		out       Result[R]
		mu        sync.Mutex
		wg        sync.WaitGroup
		completed int
	)

	sem := make(chan struct{}, concurrency)

	for i, it := range items {
		if it == nil {
			continue
		}

		// Acquiring the slot before spawning serializes starts: as soon
		// as a running invocation finishes, the next pending item goes.
		sem <- struct{}{}

		if opts.MaxRSSBytes > 0 {
			waitForMemory(ctx, opts)
		}

		wg.Add(1)
		go func(idx int, item *T) {
			defer wg.Done()
			defer func() { <-sem }()

			r, err := work(ctx, item, idx)

			mu.Lock()
			if err != nil {
				out.Errors = append(out.Errors, IndexedError{Index: idx, Err: err})
			} else {
				out.Results = append(out.Results, r)
			}
			completed++
			done := completed
			if opts.OnProgress != nil {
				// Fired under the lock so counts observed by the
				// listener stay monotonic.
				opts.OnProgress(done, total)
			}
			mu.Unlock()
		}(i, it)
	}

	wg.Wait()
	return out
}

// waitForMemory blocks until a resident-memory sample drops below the
// configured ceiling, or ctx is done. Sampling failures are treated as
// below-limit so a broken metrics source cannot wedge the pool.
func waitForMemory(ctx context.Context, opts Options) {
	interval := opts.SampleInterval
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	throttled := false
	for {
		sampled, err := sampleRSS()
		if err != nil || sampled <= opts.MaxRSSBytes {
			return
		}

		if !throttled {
			throttled = true
			if opts.OnThrottle != nil {
				opts.OnThrottle(sampled, opts.MaxRSSBytes)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
