// Package dispatcher implements the single-request dispatch path of
// spec.md §4.6: select a worker, acquire its slot, issue the dialect
// request, and retry with exponential backoff on failure.
package dispatcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zepwave/inferlb/internal/errs"
	"github.com/zepwave/inferlb/internal/metrics"
	"github.com/zepwave/inferlb/internal/selector"
	"github.com/zepwave/inferlb/internal/worker"
)

// maxSelectionAttempts bounds how many times Dispatch will re-draw a
// worker within one attempt after losing a slot-acquisition race, before
// giving up the attempt as starved.
const maxSelectionAttempts = 8

// Result is the outcome of one successful dispatch.
type Result struct {
	WorkerID string
	Model    string
	Text     string
	Attempts int
	Duration time.Duration
}

// Dispatcher owns the worker set, shared HTTP client, and metrics registry
// needed to carry out spec.md §4.6's retry loop.
type Dispatcher struct {
	workers        []*worker.Worker
	client         *http.Client
	registry       *metrics.Registry
	maxRetries     int
	requestTimeout time.Duration
}

// New constructs a Dispatcher.
func New(workers []*worker.Worker, client *http.Client, registry *metrics.Registry, maxRetries int, requestTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		workers:        workers,
		client:         client,
		registry:       registry,
		maxRetries:     maxRetries,
		requestTimeout: requestTimeout,
	}
}

// Dispatch runs the full select/acquire/call/retry loop for one prompt, per
// spec.md §4.6. Backoff follows 0.5·2^n seconds with no jitter, so callers
// can reason about retry timing deterministically.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, params worker.Params) (Result, error) {
	params = worker.NormalizeParams(params)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	maxAttempts := d.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := waitOrCancel(ctx, b.NextBackOff()); err != nil {
				return Result{}, err
			}
		}

		w, err := d.acquireWorker()
		if err != nil {
			lastErr = err
			continue
		}

		result, err := d.attempt(ctx, w, prompt, params)
		w.ReleaseSlot()
		if err == nil {
			result.Attempts = attempt + 1
			return result, nil
		}
		lastErr = err
	}

	return Result{}, &errs.AllRetriesExhausted{Attempts: maxAttempts, Last: lastErr}
}

func waitOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// acquireWorker draws a weighted-random eligible worker and claims its
// slot, retrying the draw when it loses a slot-acquisition race against
// another goroutine.
func (d *Dispatcher) acquireWorker() (*worker.Worker, error) {
	for i := 0; i < maxSelectionAttempts; i++ {
		w, err := selector.Select(d.workers)
		if err != nil {
			return nil, err
		}
		if w.TryAcquireSlot() {
			return w, nil
		}
	}
	return nil, &errs.SelectionStarvation{}
}

func (d *Dispatcher) attempt(ctx context.Context, w *worker.Worker, prompt string, params worker.Params) (Result, error) {
	start := time.Now()

	body, err := w.BuildRequestBody(prompt, params)
	if err != nil {
		return Result{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URLForRequest(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	end := time.Now()
	if err != nil {
		var kindErr error
		if reqCtx.Err() == context.DeadlineExceeded {
			kindErr = &errs.TimeoutError{WorkerID: w.ID, Err: err}
		} else {
			kindErr = &errs.ConnectError{WorkerID: w.ID, Err: err}
		}
		d.record(w, start, end, false, errs.Kind(kindErr))
		return Result{}, kindErr
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kindErr := &errs.HTTPStatusError{WorkerID: w.ID, StatusCode: resp.StatusCode, Body: string(respBody)}
		d.record(w, start, end, false, errs.Kind(kindErr))
		return Result{}, kindErr
	}

	model, text, err := w.NormalizeResponse(respBody)
	if err != nil {
		kindErr := &errs.MalformedResponse{WorkerID: w.ID, Reason: err.Error()}
		d.record(w, start, end, false, errs.Kind(kindErr))
		return Result{}, kindErr
	}

	d.record(w, start, end, true, "")
	return Result{WorkerID: w.ID, Model: model, Text: text, Duration: end.Sub(start)}, nil
}

func (d *Dispatcher) record(w *worker.Worker, start, end time.Time, success bool, errKind string) {
	w.RecordRequest(end.Sub(start), success)
	d.registry.Record(metrics.Record{
		StartTime: start,
		EndTime:   end,
		WorkerID:  w.ID,
		Success:   success,
		ErrorKind: errKind,
	})
}
