// Package pool wires the Worker set, HTTP Client Pool, Metrics Registry,
// Selector, Health Prober, Dispatcher, and Batch Engine into the single
// public surface described in spec.md §3: ProcessRequest, ProcessBatch,
// GetMetrics, and GetWorkerStatus.
package pool

import (
	"context"

	"github.com/zepwave/inferlb/internal/batch"
	"github.com/zepwave/inferlb/internal/config"
	"github.com/zepwave/inferlb/internal/dispatcher"
	"github.com/zepwave/inferlb/internal/health"
	"github.com/zepwave/inferlb/internal/httpclient"
	"github.com/zepwave/inferlb/internal/metrics"
	"github.com/zepwave/inferlb/internal/worker"
)

// WorkerStatus is one worker's point-in-time snapshot for GetWorkerStatus.
type WorkerStatus struct {
	ID        string
	Healthy   bool
	InFlight  int
	Ceiling   int
	Counters  worker.Counters
	Score     float64
}

// Pool is the load balancer's core, independent of any transport surface.
type Pool struct {
	cfg        *config.Config
	workers    []*worker.Worker
	httpPool   *httpclient.Pool
	registry   *metrics.Registry
	prober     *health.Prober
	dispatcher *dispatcher.Dispatcher
	batch      *batch.Engine
}

// Open builds every collaborator from cfg, runs one synchronous health
// round so the worker set's health picture is accurate before the first
// request is served, and starts the background prober.
func Open(cfg *config.Config) (*Pool, error) {
	workers := make([]*worker.Worker, 0, len(cfg.Workers))
	for _, spec := range cfg.Workers {
		workers = append(workers, worker.New(spec))
	}

	httpCfg := httpclient.DefaultConfig(cfg.RequestTimeout)
	httpPool := httpclient.New(httpCfg)

	registry := metrics.NewRegistry(cfg.EnableMetrics)

	prober := health.New(workers, httpPool.Client(), cfg.HealthCheckInterval)
	prober.RunOnce(context.Background())
	prober.Start()

	disp := dispatcher.New(workers, httpPool.Client(), registry, cfg.MaxRetries, cfg.RequestTimeout)
	engine := batch.New(disp)

	return &Pool{
		cfg:        cfg,
		workers:    workers,
		httpPool:   httpPool,
		registry:   registry,
		prober:     prober,
		dispatcher: disp,
		batch:      engine,
	}, nil
}

// Close stops the background prober and tears down idle HTTP connections.
// In-flight dispatches are not interrupted; callers should stop admitting
// new requests before calling Close.
func (p *Pool) Close() {
	p.prober.Stop()
	p.httpPool.Close()
}

// ProcessRequest dispatches a single prompt through the Selector and
// Dispatcher, per spec.md §4.6.
func (p *Pool) ProcessRequest(ctx context.Context, prompt string, params worker.Params) (dispatcher.Result, error) {
	return p.dispatcher.Dispatch(ctx, prompt, params)
}

// ProcessBatch fans a batch of prompts across the Batch Engine, per
// spec.md §4.7. maxConcurrent falls back to the pool's configured default
// when zero.
func (p *Pool) ProcessBatch(ctx context.Context, prompts []string, params worker.Params, maxConcurrent int, onProgress batch.ProgressFunc) []batch.Item {
	if maxConcurrent <= 0 {
		maxConcurrent = p.cfg.MaxConcurrentBatch
	}
	return p.batch.Run(ctx, prompts, params, maxConcurrent, onProgress)
}

// GetMetrics returns the process-wide metrics snapshot.
func (p *Pool) GetMetrics() metrics.Snapshot {
	return p.registry.Snapshot()
}

// GetWorkerStatus returns a point-in-time status for every configured
// worker, in configuration order.
func (p *Pool) GetWorkerStatus() []WorkerStatus {
	statuses := make([]WorkerStatus, 0, len(p.workers))
	for _, w := range p.workers {
		statuses = append(statuses, WorkerStatus{
			ID:       w.ID,
			Healthy:  w.IsHealthy(),
			InFlight: w.InFlight(),
			Ceiling:  w.Ceiling,
			Counters: w.CountersSnapshot(),
			Score:    w.Score(),
		})
	}
	return statuses
}
