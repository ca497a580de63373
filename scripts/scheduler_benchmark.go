//go:build ignore
// +build ignore

// Scheduler Benchmark Tool - measures deferred-job KV throughput and
// rate-limiter throughput under concurrent load.
//
// Usage:
//
//	go run scripts/scheduler_benchmark.go \
//	  --jobs=100000 \
//	  --workers=16 \
//	  --redis-addr=localhost:6379 \
//	  --rate-limit-ips=5000
//
// Runs against an in-memory KV store by default, so it's safe to run
// without touching DynamoDB; point --redis-addr at a real instance to
// benchmark the Lua-script rate limiter against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/kv"
	"github.com/ignite/pixeltrack/internal/ratelimit"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type benchmarkConfig struct {
	JobCount      int
	Workers       int
	RedisAddr     string
	RateLimitIPs  int
	RateLimitReqs int
}

func defaultBenchmarkConfig() *benchmarkConfig {
	return &benchmarkConfig{
		JobCount:      100_000,
		Workers:       runtime.NumCPU(),
		RedisAddr:     "localhost:6379",
		RateLimitIPs:  5_000,
		RateLimitReqs: 50_000,
	}
}

// =============================================================================
// LATENCY SAMPLING
// =============================================================================

// sampler collects latencies under a mutex; the same sample-then-sort
// percentile style the teacher's suppression benchmark uses to report
// p50/p95/p99 rather than a bare average.
type sampler struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (s *sampler) add(d time.Duration) {
	s.mu.Lock()
	s.samples = append(s.samples, d)
	s.mu.Unlock()
}

func (s *sampler) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(s.samples))
	copy(sorted, s.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// =============================================================================
// KV ENQUEUE / LISTDUE BENCHMARK
// =============================================================================

// benchmarkKV exercises the Store interface the scheduler calls in
// production (its Put and ListDue methods), using the in-memory
// fake so this is safe to run without AWS credentials.
func benchmarkKV(ctx context.Context, cfg *benchmarkConfig) {
	store := kv.NewMemoryStore()
	now := time.Now()

	var enqueued int64
	lat := &sampler{}

	var wg sync.WaitGroup
	jobs := make(chan int, cfg.JobCount)
	for i := 0; i < cfg.JobCount; i++ {
		jobs <- i
	}
	close(jobs)

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				key := fmt.Sprintf("pipedrive_sync:%s:%d", uuid.NewString(), now.Unix())
				dueAt := now.Add(domain.DeferredSyncDelay + time.Duration(i%60)*time.Second)

				t0 := time.Now()
				if err := store.Put(ctx, key, "pipedrive_sync", dueAt, []byte(`{"event_id":"bench"}`), 24*time.Hour); err != nil {
					log.Printf("put failed: %v", err)
					continue
				}
				lat.add(time.Since(t0))
				atomic.AddInt64(&enqueued, 1)
			}
		}()
	}
	wg.Wait()
	enqueueElapsed := time.Since(start)

	t0 := time.Now()
	due, err := store.ListDue(ctx, "pipedrive_sync", now.Add(2*time.Minute), 1000, 10)
	listElapsed := time.Since(t0)
	if err != nil {
		log.Printf("list due failed: %v", err)
	}

	log.Println("=== kv enqueue benchmark ===")
	log.Printf("  jobs enqueued:  %d", atomic.LoadInt64(&enqueued))
	log.Printf("  enqueue time:   %s (%.0f/s)", enqueueElapsed, float64(cfg.JobCount)/enqueueElapsed.Seconds())
	log.Printf("  put p50/p95/p99: %s / %s / %s", lat.percentile(0.5), lat.percentile(0.95), lat.percentile(0.99))
	log.Printf("  list_due (10 pages, due within 2m): %d items in %s", len(due), listElapsed)
}

// =============================================================================
// RATE LIMITER BENCHMARK
// =============================================================================

// benchmarkRateLimiter hammers internal/ratelimit.Limiter with concurrent
// requests spread over a fixed pool of shard IPs, reporting the
// allow/deny split the Lua script's atomic check-then-increment produces
// under contention.
func benchmarkRateLimiter(ctx context.Context, cfg *benchmarkConfig) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("skipping rate limiter benchmark, redis unreachable at %s: %v", cfg.RedisAddr, err)
		return
	}

	limiter := ratelimit.New(client)
	ips := make([]string, cfg.RateLimitIPs)
	for i := range ips {
		ips[i] = fmt.Sprintf("203.%d.%d.%d", (i/65536)%256, (i/256)%256, i%256)
	}

	var allowed, denied, errored int64
	lat := &sampler{}

	var wg sync.WaitGroup
	jobs := make(chan int, cfg.RateLimitReqs)
	for i := 0; i < cfg.RateLimitReqs; i++ {
		jobs <- i
	}
	close(jobs)

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				ip := ips[rand.Intn(len(ips))]
				t0 := time.Now()
				res, err := limiter.Allow(ctx, ratelimit.RouteTracking, ip, 100, 60)
				lat.add(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&errored, 1)
					continue
				}
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&denied, 1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	log.Println("=== rate limiter benchmark ===")
	log.Printf("  requests:  %d across %d shards", cfg.RateLimitReqs, cfg.RateLimitIPs)
	log.Printf("  allowed:   %d", atomic.LoadInt64(&allowed))
	log.Printf("  denied:    %d", atomic.LoadInt64(&denied))
	log.Printf("  errored:   %d", atomic.LoadInt64(&errored))
	log.Printf("  throughput: %.0f/s", float64(cfg.RateLimitReqs)/elapsed.Seconds())
	log.Printf("  p50/p95/p99: %s / %s / %s", lat.percentile(0.5), lat.percentile(0.95), lat.percentile(0.99))
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	cfg := defaultBenchmarkConfig()

	flag.IntVar(&cfg.JobCount, "jobs", cfg.JobCount, "number of deferred jobs to enqueue")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent workers")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the rate-limiter benchmark")
	flag.IntVar(&cfg.RateLimitIPs, "rate-limit-ips", cfg.RateLimitIPs, "distinct shard IPs to spread requests across")
	flag.IntVar(&cfg.RateLimitReqs, "rate-limit-reqs", cfg.RateLimitReqs, "total rate-limiter check requests")
	flag.Parse()

	ctx := context.Background()

	log.Printf("scheduler benchmark starting: %d jobs, %d workers", cfg.JobCount, cfg.Workers)
	benchmarkKV(ctx, cfg)
	benchmarkRateLimiter(ctx, cfg)
}
