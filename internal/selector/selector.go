// Package selector implements the weighted-random Selector of spec.md §4.4:
// it draws one worker among the currently eligible set, proportional to
// each worker's composite Score.
package selector

import (
	"math/rand"

	"github.com/zepwave/inferlb/internal/errs"
	"github.com/zepwave/inferlb/internal/worker"
)

// Select draws one eligible worker from workers, weighted by Score via a
// prefix-sum cut. Returns *errs.NoWorkersAvailable if no worker is
// currently eligible.
func Select(workers []*worker.Worker) (*worker.Worker, error) {
	eligible := make([]*worker.Worker, 0, len(workers))
	weights := make([]float64, 0, len(workers))
	var total float64

	for _, w := range workers {
		if !w.Eligible() {
			continue
		}
		score := w.Score()
		eligible = append(eligible, w)
		weights = append(weights, score)
		total += score
	}

	if len(eligible) == 0 {
		return nil, &errs.NoWorkersAvailable{}
	}

	cut := rand.Float64() * total
	var running float64
	for i, w := range eligible {
		running += weights[i]
		if cut <= running {
			return w, nil
		}
	}
	// floating-point rounding may leave cut marginally above the final
	// prefix sum; fall back to the last eligible worker.
	return eligible[len(eligible)-1], nil
}
