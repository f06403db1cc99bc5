package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig_Fills300sRequestTimeoutWhenUnset(t *testing.T) {
	cfg := DefaultConfig(0)
	if cfg.RequestTimeout != 300*time.Second {
		t.Fatalf("expected default request timeout of 300s, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxConnsPerHost != 100 {
		t.Fatalf("expected 100 conns per host, got %d", cfg.MaxConnsPerHost)
	}
}

func TestPool_ClientServesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := New(DefaultConfig(5 * time.Second))
	defer p.Close()

	resp, err := p.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestPool_CloseIsIdempotent(t *testing.T) {
	p := New(DefaultConfig(time.Second))
	p.Close()
	p.Close()
}
