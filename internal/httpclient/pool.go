// Package httpclient implements the HTTP Client Pool of spec.md §4.2: a
// single shared, connection-pooled *http.Client used by every dispatch and
// health-probe call against upstream inference workers.
//
// Adapted from the teacher's internal/worker.Pool, which built the same
// aggressively connection-pooled http.Transport shape for a fan-out HTTP
// forwarder; here the pool has no job queue of its own — the Dispatcher and
// Health Prober each own their own concurrency, and simply share this one
// client.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Config tunes the shared transport. Fields map directly onto spec.md §4.2.
type Config struct {
	MaxConnsPerHost       int
	DNSCacheTTL           time.Duration
	KeepAliveTimeout      time.Duration
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	RequestTimeout        time.Duration
}

// DefaultConfig returns the defaults named in spec.md §4.2.
func DefaultConfig(requestTimeout time.Duration) Config {
	if requestTimeout <= 0 {
		requestTimeout = 300 * time.Second
	}
	return Config{
		MaxConnsPerHost:       100,
		DNSCacheTTL:           300 * time.Second,
		KeepAliveTimeout:      30 * time.Second,
		ConnectTimeout:        10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		RequestTimeout:        requestTimeout,
	}
}

// Pool wraps a shared *http.Client plus the transport it owns, so Close can
// tear down idle connections deterministically on pool shutdown.
type Pool struct {
	cfg       Config
	client    *http.Client
	transport *http.Transport
}

// New builds the shared HTTP Client Pool.
func New(cfg Config) *Pool {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAliveTimeout,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.DNSCacheTTL,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	return &Pool{
		cfg:       cfg,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}
}

// Client returns the shared *http.Client. It is safe for concurrent use by
// contract (stdlib http.Client), and read-only after construction.
func (p *Pool) Client() *http.Client {
	return p.client
}

// Close tears down idle connections. In-flight requests are not
// interrupted; callers are expected to have already given them a grace
// period (see spec.md §5 cancellation semantics).
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}
