package config

import "testing"

func validConfig() *Config {
	return &Config{
		Workers: []WorkerSpec{
			{ID: "w1", Host: "127.0.0.1", Port: 8000, Dialect: DialectOpenAI, Model: "m"},
		},
	}
}

func TestValidate_RejectsEmptyWorkerList(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty worker list")
	}
}

func TestValidate_RejectsDuplicateWorkerIDs(t *testing.T) {
	cfg := &Config{Workers: []WorkerSpec{
		{ID: "w1", Host: "a", Port: 1, Dialect: DialectOpenAI},
		{ID: "w1", Host: "b", Port: 2, Dialect: DialectNative},
	}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate worker id")
	}
}

func TestValidate_RejectsUnknownDialect(t *testing.T) {
	cfg := &Config{Workers: []WorkerSpec{
		{ID: "w1", Host: "a", Port: 1, Dialect: "made-up-style"},
	}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestValidate_FillsWorkerConcurrencyDefault(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers[0].MaxConcurrentRequests != 5 {
		t.Fatalf("expected default max_concurrent_requests=5, got %d", cfg.Workers[0].MaxConcurrentRequests)
	}
}

func TestValidate_FillsPoolLevelDefaults(t *testing.T) {
	cfg := validConfig()
	// max_retries=0 is a valid "no retries" setting; only a negative value
	// is treated as unset.
	cfg.MaxRetries = -1
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected default max_retries=3, got %d", cfg.MaxRetries)
	}
	if cfg.MaxConcurrentBatch != 50 {
		t.Fatalf("expected default max_concurrent_batch=50, got %d", cfg.MaxConcurrentBatch)
	}
}

func TestValidate_AcceptsAllThreeDialects(t *testing.T) {
	cfg := &Config{Workers: []WorkerSpec{
		{ID: "a", Host: "h", Port: 1, Dialect: DialectOpenAI},
		{ID: "b", Host: "h", Port: 2, Dialect: DialectNative},
		{ID: "c", Host: "h", Port: 3, Dialect: DialectCluster},
	}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
