// Package metrics implements the process-wide Metrics Registry: a bounded
// rolling window of request records plus cumulative counters, and a
// parallel Prometheus export for operational dashboards.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

const defaultWindowSize = 1000

var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inferlb",
		Name:      "requests_total",
		Help:      "Total number of dispatch attempts recorded by the metrics registry.",
	})
	requestsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inferlb",
		Name:      "requests_succeeded_total",
		Help:      "Total number of dispatch attempts that succeeded.",
	})
	requestsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inferlb",
		Name:      "requests_failed_total",
		Help:      "Total number of dispatch attempts that failed.",
	})
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inferlb",
		Name:      "request_duration_seconds",
		Help:      "Observed duration of individual dispatch attempts.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Record is a single completed dispatch attempt.
type Record struct {
	StartTime time.Time
	EndTime   time.Time
	WorkerID  string
	Success   bool
	ErrorKind string
}

// Snapshot is a point-in-time view of the registry's aggregate statistics.
type Snapshot struct {
	Total               uint64
	Successful          uint64
	Failed              uint64
	SuccessRate         float64
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
}

// Registry is the pool-owned metrics collaborator. It holds no hidden
// globals: the dispatcher is handed a *Registry instance at construction
// time.
type Registry struct {
	enabled bool

	mu     sync.Mutex
	window []Record
	next   int
	filled int

	total      atomic.Uint64
	successful atomic.Uint64
	failed     atomic.Uint64
}

// NewRegistry creates a Registry. When enabled is false, Record is a no-op
// and Snapshot always reports zeros, per spec.md §4.3.
func NewRegistry(enabled bool) *Registry {
	return &Registry{
		enabled: enabled,
		window:  make([]Record, defaultWindowSize),
	}
}

// Record appends a completed request to the rolling window and bumps the
// cumulative counters. Safe for concurrent use by many dispatchers.
func (r *Registry) Record(rec Record) {
	if !r.enabled {
		return
	}

	r.total.Inc()
	if rec.Success {
		r.successful.Inc()
	} else {
		r.failed.Inc()
	}

	requestsTotal.Inc()
	if rec.Success {
		requestsSucceeded.Inc()
	} else {
		requestsFailed.Inc()
	}
	requestDuration.Observe(rec.EndTime.Sub(rec.StartTime).Seconds())

	r.mu.Lock()
	r.window[r.next] = rec
	r.next = (r.next + 1) % len(r.window)
	if r.filled < len(r.window) {
		r.filled++
	}
	r.mu.Unlock()
}

// Snapshot computes the aggregate view described in spec.md §4.3.
func (r *Registry) Snapshot() Snapshot {
	if !r.enabled {
		return Snapshot{}
	}

	total := r.total.Load()
	successful := r.successful.Load()
	failed := r.failed.Load()

	snap := Snapshot{
		Total:      total,
		Successful: successful,
		Failed:     failed,
	}
	if total > 0 {
		snap.SuccessRate = float64(successful) / float64(total)
	}

	r.mu.Lock()
	samples := make([]Record, r.filled)
	copy(samples, r.window[:r.filled])
	r.mu.Unlock()

	if len(samples) == 0 {
		return snap
	}

	var sum time.Duration
	min, max := time.Duration(1<<63-1), time.Duration(0)
	var earliest, latest time.Time
	for i, s := range samples {
		d := s.EndTime.Sub(s.StartTime)
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		if i == 0 || s.StartTime.Before(earliest) {
			earliest = s.StartTime
		}
		if i == 0 || s.EndTime.After(latest) {
			latest = s.EndTime
		}
	}
	snap.AverageResponseTime = sum / time.Duration(len(samples))
	snap.MinResponseTime = min
	snap.MaxResponseTime = max

	if len(samples) >= 2 {
		span := latest.Sub(earliest).Seconds()
		if span > 0 {
			snap.RequestsPerSecond = float64(len(samples)) / span
		}
	}

	return snap
}
