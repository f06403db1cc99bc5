// Command loadtest drives concurrent POST /v1/complete traffic against a
// running inferlb server and reports latency percentiles and error
// breakdowns, the way an operator would sanity-check a deployment before
// pointing real traffic at it.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type Result struct {
	statusCode       int
	latency          time.Duration
	err              error
	errorBodySnippet string
}

type completeRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

func main() {
	var (
		targetURL   string
		prompt      string
		maxTokens   int
		requests    int
		concurrency int
		timeoutSec  int
	)
	flag.StringVar(&targetURL, "url", "http://localhost:8080/v1/complete", "Target URL")
	flag.StringVar(&prompt, "prompt", "Say hello in one sentence.", "Prompt to send on every request")
	flag.IntVar(&maxTokens, "max-tokens", 64, "max_tokens field of the request body")
	flag.IntVar(&requests, "requests", 1000, "Total number of requests to send")
	flag.IntVar(&concurrency, "concurrency", 50, "Number of concurrent workers")
	flag.IntVar(&timeoutSec, "timeout", 60, "Per-request timeout seconds")
	flag.Parse()

	if requests <= 0 || concurrency <= 0 {
		fmt.Println("requests and concurrency must be > 0")
		os.Exit(1)
	}
	if concurrency > requests {
		concurrency = requests
	}

	payload, err := json.Marshal(completeRequest{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		fmt.Println("failed to build request payload:", err)
		os.Exit(1)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          concurrency,
		MaxIdleConnsPerHost:   concurrency,
		MaxConnsPerHost:       concurrency,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: time.Duration(timeoutSec) * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(timeoutSec) * time.Second,
	}

	jobs := make(chan int, requests)
	results := make(chan Result, requests)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	testStart := time.Now()
	worker := func() {
		defer wg.Done()
		for range jobs {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
			if err != nil {
				results <- Result{err: err}
				continue
			}
			req.Header.Set("Content-Type", "application/json")

			start := time.Now()
			resp, err := client.Do(req)
			lat := time.Since(start)

			if err != nil {
				results <- Result{latency: lat, err: err}
				continue
			}
			var snippet string
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				snippet = strings.TrimSpace(string(b))
			} else {
				io.Copy(io.Discard, resp.Body)
			}
			resp.Body.Close()
			results <- Result{statusCode: resp.StatusCode, latency: lat, errorBodySnippet: snippet}
		}
	}

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker()
	}

	for i := 0; i < requests; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	totalElapsed := time.Since(testStart)
	close(results)

	var (
		latencies      []time.Duration
		successCount   int
		errorCount     int
		statusCounters = make(map[int]int)
		errorKinds     = make(map[string]int)
	)

	for r := range results {
		if r.err != nil {
			errorCount++
			errorKinds[r.err.Error()]++
			latencies = append(latencies, r.latency)
			continue
		}
		statusCounters[r.statusCode]++
		if r.statusCode >= 200 && r.statusCode < 400 {
			successCount++
		} else {
			errorCount++
			key := fmt.Sprintf("HTTP %d", r.statusCode)
			if r.errorBodySnippet != "" {
				key = fmt.Sprintf("%s: %s", key, truncateForPrint(r.errorBodySnippet, 120))
			}
			errorKinds[key]++
		}
		latencies = append(latencies, r.latency)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	percentile := func(p float64) time.Duration {
		if len(latencies) == 0 {
			return 0
		}
		idx := int(p*float64(len(latencies))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	var avg time.Duration
	for _, d := range latencies {
		avg += d
	}
	if len(latencies) > 0 {
		avg /= time.Duration(len(latencies))
	}

	fmt.Println("=== Load Test Summary ===")
	fmt.Printf("URL:            %s\n", targetURL)
	fmt.Printf("Requests:       %d\n", requests)
	fmt.Printf("Concurrency:    %d\n", concurrency)
	fmt.Printf("Success:        %d\n", successCount)
	fmt.Printf("Errors:         %d\n", errorCount)
	fmt.Printf("Total Elapsed:  %v\n", totalElapsed)
	fmt.Printf("Status Counts:  %v\n", statusCounters)
	if len(latencies) > 0 {
		fmt.Printf("Avg Latency:    %v\n", avg)
		fmt.Printf("P50 Latency:    %v\n", percentile(0.50))
		fmt.Printf("P90 Latency:    %v\n", percentile(0.90))
		fmt.Printf("P95 Latency:    %v\n", percentile(0.95))
		fmt.Printf("P99 Latency:    %v\n", percentile(0.99))
	}

	if len(errorKinds) > 0 {
		type kv struct {
			k string
			v int
		}
		var arr []kv
		for k, v := range errorKinds {
			arr = append(arr, kv{k, v})
		}
		sort.Slice(arr, func(i, j int) bool { return arr[i].v > arr[j].v })
		maxShow := 10
		if len(arr) < maxShow {
			maxShow = len(arr)
		}
		fmt.Println("Top Error Kinds:")
		for i := 0; i < maxShow; i++ {
			fmt.Printf("  %d) %s  (count=%d)\n", i+1, arr[i].k, arr[i].v)
		}
	}
}

func truncateForPrint(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
