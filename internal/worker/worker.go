// Package worker implements the Worker abstraction of spec.md §4.1: one
// upstream inference endpoint, its wire dialect, live counters, rolling
// performance stats, and health flag.
package worker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/zepwave/inferlb/internal/config"
)

const defaultDurationWindowSize = 100

// Params are the per-request generation parameters a caller may override.
type Params struct {
	MaxTokens        int
	Temperature      float64
	TopP             float64
	Stop             []string
	FrequencyPenalty float64
}

// NormalizeParams applies the defaulting and clamping rules of spec.md §4.6.
func NormalizeParams(p Params) Params {
	if p.MaxTokens < 1 {
		p.MaxTokens = 500
	}
	if p.Temperature == 0 {
		p.Temperature = 0.7
	}
	p.Temperature = clamp(p.Temperature, 0.0, 1.0)
	if p.TopP == 0 {
		p.TopP = 0.9
	}
	p.TopP = clamp(p.TopP, 0.0, 1.0)
	if p.FrequencyPenalty < 0 {
		p.FrequencyPenalty = 0
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Worker represents one upstream inference server. Its in-flight counter,
// rolling counters, health flag, and duration window are safe for
// concurrent access from dispatcher goroutines (writers) and the health
// prober and selector (readers/writers); see spec.md §5.
type Worker struct {
	ID      string
	Host    string
	Port    int
	Dialect config.Dialect
	Model   string
	Ceiling int

	healthy      atomic.Bool
	lastErrorAt  atomic.Int64 // unix nanos; 0 means "never"
	inFlight     atomic.Int32
	total        atomic.Uint64
	successes    atomic.Uint64
	failures     atomic.Uint64

	durMu     sync.Mutex
	durations []time.Duration // ring buffer, bounded at defaultDurationWindowSize
	durHead   int
	durFilled int
}

// New constructs a Worker from a configured spec. It starts healthy, as
// spec.md §3 requires.
func New(spec config.WorkerSpec) *Worker {
	w := &Worker{
		ID:        spec.ID,
		Host:      spec.Host,
		Port:      spec.Port,
		Dialect:   spec.Dialect,
		Model:     spec.Model,
		Ceiling:   spec.MaxConcurrentRequests,
		durations: make([]time.Duration, defaultDurationWindowSize),
	}
	w.healthy.Store(true)
	return w
}

// URLForRequest returns the absolute URL for this worker's completion
// endpoint, per the dialect table in spec.md §6.
func (w *Worker) URLForRequest() string {
	switch w.Dialect {
	case config.DialectOpenAI:
		return fmt.Sprintf("http://%s:%d/v1/completions", w.Host, w.Port)
	case config.DialectNative:
		return fmt.Sprintf("http://%s:%d/api/generate", w.Host, w.Port)
	case config.DialectCluster:
		return fmt.Sprintf("http://%s:%d/v1/chat/completions", w.Host, w.Port)
	default:
		return fmt.Sprintf("http://%s:%d/", w.Host, w.Port)
	}
}

// URLForHealth returns the absolute URL the Health Prober polls.
func (w *Worker) URLForHealth() string {
	switch w.Dialect {
	case config.DialectOpenAI, config.DialectCluster:
		return fmt.Sprintf("http://%s:%d/v1/models", w.Host, w.Port)
	case config.DialectNative:
		return fmt.Sprintf("http://%s:%d/api/tags", w.Host, w.Port)
	default:
		return fmt.Sprintf("http://%s:%d/", w.Host, w.Port)
	}
}

// TryAcquireSlot atomically increments in_flight iff it is strictly below
// ceiling, returning whether the acquisition succeeded. Callers MUST treat
// a failed acquisition as a selection failure and try another worker.
func (w *Worker) TryAcquireSlot() bool {
	for {
		cur := w.inFlight.Load()
		if cur >= int32(w.Ceiling) {
			return false
		}
		if w.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// ReleaseSlot decrements in_flight. Must be paired with a successful
// TryAcquireSlot.
func (w *Worker) ReleaseSlot() {
	w.inFlight.Dec()
}

// InFlight returns the current in-flight count.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

// RecordRequest appends a duration sample and bumps counters, per
// spec.md §4.1. On failure it also stamps the last-error timestamp.
func (w *Worker) RecordRequest(d time.Duration, success bool) {
	w.total.Inc()
	if success {
		w.successes.Inc()
	} else {
		w.failures.Inc()
		w.lastErrorAt.Store(time.Now().UnixNano())
	}

	w.durMu.Lock()
	w.durations[w.durHead] = d
	w.durHead = (w.durHead + 1) % len(w.durations)
	if w.durFilled < len(w.durations) {
		w.durFilled++
	}
	w.durMu.Unlock()
}

// SetHealthy sets the health flag. The Health Prober is the only writer;
// the Selector and callers only read it via IsHealthy.
func (w *Worker) SetHealthy(healthy bool) {
	w.healthy.Store(healthy)
	if !healthy {
		w.lastErrorAt.Store(time.Now().UnixNano())
	}
}

// RecordProbeLatency feeds a health-probe round-trip time into the same
// rolling duration window Score reads for its speed component, without
// touching the request/success/failure counters — health probes are not
// inference traffic and must not dilute the success rate.
func (w *Worker) RecordProbeLatency(d time.Duration) {
	w.durMu.Lock()
	w.durations[w.durHead] = d
	w.durHead = (w.durHead + 1) % len(w.durations)
	if w.durFilled < len(w.durations) {
		w.durFilled++
	}
	w.durMu.Unlock()
}

// IsHealthy reports the current health flag.
func (w *Worker) IsHealthy() bool {
	return w.healthy.Load()
}

// Counters is a snapshot of a worker's cumulative request counters.
type Counters struct {
	Total      uint64
	Successes  uint64
	Failures   uint64
}

// CountersSnapshot returns the current cumulative counters.
func (w *Worker) CountersSnapshot() Counters {
	return Counters{
		Total:     w.total.Load(),
		Successes: w.successes.Load(),
		Failures:  w.failures.Load(),
	}
}

// meanDuration returns the mean of the rolling duration window, and
// whether any samples exist yet.
func (w *Worker) meanDuration() (time.Duration, bool) {
	w.durMu.Lock()
	defer w.durMu.Unlock()

	if w.durFilled == 0 {
		return 0, false
	}
	var sum time.Duration
	for i := 0; i < w.durFilled; i++ {
		sum += w.durations[i]
	}
	return sum / time.Duration(w.durFilled), true
}

// Score computes the composite selection weight described in spec.md §4.4:
// w = 0.4·availability + 0.4·success_rate + 0.2·speed, floored at a small
// epsilon so every eligible worker remains drawable.
func (w *Worker) Score() float64 {
	const epsilon = 0.01

	avail := 1.0 - float64(w.InFlight())/float64(w.Ceiling)
	avail = clamp(avail, 0.0, 1.0)

	total := w.total.Load()
	var success float64
	if total == 0 {
		success = 1.0
	} else {
		success = float64(w.successes.Load()) / float64(total)
	}

	var speed float64
	if mean, ok := w.meanDuration(); !ok {
		speed = 0.5
	} else {
		speed = 1.0 / (1.0 + mean.Seconds())
	}

	composite := 0.4*avail + 0.4*success + 0.2*speed
	if composite < epsilon {
		composite = epsilon
	}
	return composite
}

// Eligible reports whether the worker is healthy and has free capacity, per
// the Selector's filtering rule in spec.md §4.4.
func (w *Worker) Eligible() bool {
	return w.IsHealthy() && w.InFlight() < w.Ceiling
}
