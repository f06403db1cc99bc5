// Package health implements the background Health Prober of spec.md §4.5:
// a periodic, parallel GET against every worker's health endpoint that
// flips each worker's health flag based on whether the probe succeeded
// within its own deadline.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/zepwave/inferlb/internal/worker"
)

const probeTimeout = 5 * time.Second

// Prober owns the periodic ticker and runs probe rounds until Stop is
// called. One round always runs synchronously at pool-open, before the
// ticker starts, so ProcessRequest never races an empty health picture.
type Prober struct {
	workers  []*worker.Worker
	client   *http.Client
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Prober. It does not start the ticker; call RunOnce then
// Start.
func New(workers []*worker.Worker, client *http.Client, interval time.Duration) *Prober {
	return &Prober{
		workers:  workers,
		client:   client,
		interval: interval,
	}
}

// RunOnce performs a single synchronous probe round across all workers,
// blocking until every probe has either completed or hit its deadline.
func (p *Prober) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			p.probe(ctx, w)
		}(w)
	}
	wg.Wait()
}

// Start begins the periodic background loop. Call Stop to cancel it.
func (p *Prober) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	ticker := time.NewTicker(p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the background loop and waits for any in-flight round's
// goroutine to return. Each probe's deadline derives from the loop's
// context, so cancelling it also aborts the HTTP requests of a round in
// progress.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Prober) probe(ctx context.Context, w *worker.Worker) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.URLForHealth(), nil)
	if err != nil {
		w.SetHealthy(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		w.SetHealthy(false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.SetHealthy(false)
		return
	}

	w.SetHealthy(true)
	w.RecordProbeLatency(time.Since(start))
}
