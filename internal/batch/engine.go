// Package batch implements the Batch Engine of spec.md §4.7: ordered
// fan-out of many prompts through the Dispatcher, gated by exactly one
// global concurrency semaphore.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zepwave/inferlb/internal/dispatcher"
	"github.com/zepwave/inferlb/internal/worker"
)

// Item is one prompt's outcome within a batch. Exactly one of Result/Err is
// set.
type Item struct {
	Index  int
	Result dispatcher.Result
	Err    error
}

// ProgressFunc is invoked after every prompt completes, in completion
// order, not submission order.
type ProgressFunc func(completed, total int, elapsed time.Duration)

// Engine fans a batch of prompts out across the Dispatcher.
type Engine struct {
	dispatcher *dispatcher.Dispatcher
}

// New constructs a batch Engine bound to a Dispatcher.
func New(d *dispatcher.Dispatcher) *Engine {
	return &Engine{dispatcher: d}
}

// Run dispatches every prompt in prompts, gated by a single semaphore sized
// maxConcurrent. A prompt holds its permit for its entire lifecycle,
// including retries. Results preserve input order regardless of
// completion order, and a failure in one prompt never aborts the others.
func (e *Engine) Run(ctx context.Context, prompts []string, params worker.Params, maxConcurrent int, onProgress ProgressFunc) []Item {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]Item, len(prompts))
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	done := make(chan struct{}, len(prompts))

	start := time.Now()
	for i, prompt := range prompts {
		i, prompt := i, prompt
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Item{Index: i, Err: err}
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			result, err := e.dispatcher.Dispatch(ctx, prompt, params)
			results[i] = Item{Index: i, Result: result, Err: err}
			done <- struct{}{}
		}()
	}

	for completed := 1; completed <= len(prompts); completed++ {
		<-done
		if onProgress != nil {
			onProgress(completed, len(prompts), time.Since(start))
		}
	}

	return results
}
