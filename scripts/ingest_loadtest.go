//go:build ignore
// +build ignore

// Ingest Load Test - validates the tracking endpoint under concurrent load.
//
// Usage:
//
//	go run scripts/ingest_loadtest.go \
//	  --url=http://localhost:8080 \
//	  --duration=2m \
//	  --workers=32 \
//	  --rps=500 \
//	  --pixel-id=pix_demo \
//	  --project-id=proj_demo
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type loadTestConfig struct {
	BaseURL         string
	Duration        time.Duration
	Workers         int
	RequestsPerSec  int
	PixelID         string
	ProjectID       string
	FormSubmitRatio float64 // fraction of requests that simulate a form_submit
	RequestTimeout  time.Duration
}

func defaultConfig() *loadTestConfig {
	return &loadTestConfig{
		BaseURL:         "http://localhost:8080",
		Duration:        2 * time.Minute,
		Workers:         16,
		RequestsPerSec:  200,
		PixelID:         "pix_loadtest",
		ProjectID:       "proj_loadtest",
		FormSubmitRatio: 0.1,
		RequestTimeout:  5 * time.Second,
	}
}

// =============================================================================
// METRICS
// =============================================================================

// loadTestMetrics tracks request outcomes and latency, mirroring the
// teacher's atomic-counter + latency-sample style for load-test reporting.
type loadTestMetrics struct {
	sent      int64
	succeeded int64
	failed    int64
	rateLimit int64

	mu         sync.Mutex
	latencies  []time.Duration
	statusByCd map[int]int64
}

func newLoadTestMetrics() *loadTestMetrics {
	return &loadTestMetrics{statusByCd: make(map[int]int64)}
}

func (m *loadTestMetrics) recordSuccess(d time.Duration, status int) {
	atomic.AddInt64(&m.sent, 1)
	atomic.AddInt64(&m.succeeded, 1)
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.statusByCd[status]++
	m.mu.Unlock()
}

func (m *loadTestMetrics) recordFailure(status int) {
	atomic.AddInt64(&m.sent, 1)
	atomic.AddInt64(&m.failed, 1)
	if status == http.StatusTooManyRequests {
		atomic.AddInt64(&m.rateLimit, 1)
	}
	m.mu.Lock()
	m.statusByCd[status]++
	m.mu.Unlock()
}

func (m *loadTestMetrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func (m *loadTestMetrics) report(elapsed time.Duration) {
	sent := atomic.LoadInt64(&m.sent)
	ok := atomic.LoadInt64(&m.succeeded)
	failed := atomic.LoadInt64(&m.failed)
	rl := atomic.LoadInt64(&m.rateLimit)

	log.Println("=== ingest load test results ===")
	log.Printf("  duration:     %s", elapsed)
	log.Printf("  sent:         %d (%.1f req/s)", sent, float64(sent)/elapsed.Seconds())
	log.Printf("  succeeded:    %d (%.2f%%)", ok, pct(ok, sent))
	log.Printf("  failed:       %d (%.2f%%)", failed, pct(failed, sent))
	log.Printf("  rate_limited: %d", rl)
	log.Printf("  p50 latency:  %s", m.percentile(0.50))
	log.Printf("  p95 latency:  %s", m.percentile(0.95))
	log.Printf("  p99 latency:  %s", m.percentile(0.99))

	m.mu.Lock()
	defer m.mu.Unlock()
	for code, count := range m.statusByCd {
		log.Printf("  status %d: %d", code, count)
	}
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// =============================================================================
// TRACK REQUEST BUILDER
// =============================================================================

var utmSources = []string{"google", "facebook", "newsletter", "direct", "linkedin"}
var utmCampaigns = []string{"spring_sale", "brand_awareness", "retargeting", ""}

func buildTrackBody(cfg *loadTestConfig, visitorCookie string, formSubmit bool) []byte {
	body := map[string]any{
		"pixel_id":       cfg.PixelID,
		"project_id":     cfg.ProjectID,
		"page_url":       fmt.Sprintf("https://example.com/page-%d", rand.Intn(50)),
		"referrer_url":   "https://google.com/search",
		"page_title":     "Load Test Page",
		"visitor_cookie": visitorCookie,
		"event_type":     "pageview",
		"utm_source":     utmSources[rand.Intn(len(utmSources))],
		"utm_campaign":   utmCampaigns[rand.Intn(len(utmCampaigns))],
	}
	if formSubmit {
		body["event_type"] = "form_submit"
		body["form_data"] = map[string]string{
			"email":      fmt.Sprintf("loadtest-%d@example.com", rand.Intn(1_000_000)),
			"first_name": "Load",
			"last_name":  "Test",
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal track body: %v", err)
	}
	return data
}

// =============================================================================
// WORKER POOL
// =============================================================================

// runWorkers fans out requests across cfg.Workers goroutines, throttled
// to an aggregate cfg.RequestsPerSec via a shared ticker, following the
// teacher's buffered-channel worker-pool idiom used for its own
// traffic-generation tooling.
func runWorkers(ctx context.Context, cfg *loadTestConfig, client *http.Client, metrics *loadTestMetrics) {
	var wg sync.WaitGroup
	interval := time.Second / time.Duration(max(cfg.RequestsPerSec, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	jobs := make(chan struct{}, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				sendOneTrack(ctx, cfg, client, metrics)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			select {
			case jobs <- struct{}{}:
			default:
				// workers saturated; drop this tick rather than block,
				// mirroring the teacher's load shedding under backpressure.
			}
		}
	}
}

func sendOneTrack(ctx context.Context, cfg *loadTestConfig, client *http.Client, metrics *loadTestMetrics) {
	visitorCookie := uuid.NewString()
	formSubmit := rand.Float64() < cfg.FormSubmitRatio
	payload := buildTrackBody(cfg, visitorCookie, formSubmit)

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.BaseURL+"/track", bytes.NewReader(payload))
	if err != nil {
		metrics.recordFailure(0)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.recordFailure(0)
		return
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.recordSuccess(elapsed, resp.StatusCode)
	} else {
		metrics.recordFailure(resp.StatusCode)
	}
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	cfg := defaultConfig()
	var durationStr string

	flag.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the running trackserver")
	flag.StringVar(&durationStr, "duration", cfg.Duration.String(), "test duration (e.g. 2m, 30s)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent worker goroutines")
	flag.IntVar(&cfg.RequestsPerSec, "rps", cfg.RequestsPerSec, "target aggregate requests per second")
	flag.StringVar(&cfg.PixelID, "pixel-id", cfg.PixelID, "pixel_id to send on every request")
	flag.StringVar(&cfg.ProjectID, "project-id", cfg.ProjectID, "project_id to send on every request")
	flag.Float64Var(&cfg.FormSubmitRatio, "form-submit-ratio", cfg.FormSubmitRatio, "fraction of requests simulating a form_submit")
	flag.Parse()

	var err error
	cfg.Duration, err = time.ParseDuration(durationStr)
	if err != nil {
		log.Fatalf("invalid --duration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: cfg.RequestTimeout}
	metrics := newLoadTestMetrics()

	log.Printf("starting ingest load test: %s, %d workers, %d rps, duration %s",
		cfg.BaseURL, cfg.Workers, cfg.RequestsPerSec, cfg.Duration)

	start := time.Now()
	runWorkers(ctx, cfg, client, metrics)
	metrics.report(time.Since(start))
}
