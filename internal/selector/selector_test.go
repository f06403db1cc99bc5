package selector

import (
	"errors"
	"testing"

	"github.com/zepwave/inferlb/internal/config"
	"github.com/zepwave/inferlb/internal/errs"
	"github.com/zepwave/inferlb/internal/worker"
)

func newWorker(id string, ceiling int) *worker.Worker {
	return worker.New(config.WorkerSpec{
		ID:                    id,
		Host:                  "127.0.0.1",
		Port:                  9000,
		Dialect:               config.DialectOpenAI,
		Model:                 "m",
		MaxConcurrentRequests: ceiling,
	})
}

func TestSelect_NoWorkersAvailableWhenAllUnhealthy(t *testing.T) {
	w1 := newWorker("w1", 1)
	w1.SetHealthy(false)

	_, err := Select([]*worker.Worker{w1})
	var nwa *errs.NoWorkersAvailable
	if !errors.As(err, &nwa) {
		t.Fatalf("expected NoWorkersAvailable, got %v", err)
	}
}

func TestSelect_NoWorkersAvailableWhenEmpty(t *testing.T) {
	_, err := Select(nil)
	var nwa *errs.NoWorkersAvailable
	if !errors.As(err, &nwa) {
		t.Fatalf("expected NoWorkersAvailable, got %v", err)
	}
}

func TestSelect_SkipsUnhealthyAndAtCeiling(t *testing.T) {
	unhealthy := newWorker("unhealthy", 5)
	unhealthy.SetHealthy(false)

	atCeiling := newWorker("at-ceiling", 1)
	atCeiling.TryAcquireSlot()

	eligible := newWorker("eligible", 5)

	for i := 0; i < 50; i++ {
		picked, err := Select([]*worker.Worker{unhealthy, atCeiling, eligible})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if picked.ID != "eligible" {
			t.Fatalf("expected only the eligible worker to ever be picked, got %s", picked.ID)
		}
	}
}

func TestSelect_WeightsTowardHigherScoringWorker(t *testing.T) {
	strong := newWorker("strong", 10)
	weak := newWorker("weak", 10)
	for i := 0; i < 20; i++ {
		weak.RecordRequest(0, false)
	}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		picked, err := Select([]*worker.Worker{strong, weak})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[picked.ID]++
	}

	if counts["strong"] <= counts["weak"] {
		t.Fatalf("expected strong worker to be picked more often, got %+v", counts)
	}
}
