// Package ratelimit provides fixed-window, IP-sharded request throttling
// backed by Redis, adapted from the ESP-quota limiter idiom: a single
// Lua script checks and increments atomically so concurrent requests
// crossing the limit produce exactly `limit` allows and the rest denies.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RouteClass names a family of endpoints sharing a default limit.
type RouteClass string

const (
	RouteTracking   RouteClass = "tracking"
	RouteAdmin      RouteClass = "admin"
	RoutePublicRead RouteClass = "public-read"
)

// RouteLimit is the default (limit, window) pair for a route class.
type RouteLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits mirrors spec §4.7's route-class defaults.
var DefaultLimits = map[RouteClass]RouteLimit{
	RouteTracking:   {Limit: 100, Window: time.Minute},
	RouteAdmin:      {Limit: 100, Window: time.Hour},
	RoutePublicRead: {Limit: 1000, Window: time.Hour},
}

const (
	minLimit  = 1
	maxLimit  = 10_000
	minWindow = 1
	maxWindow = 86_400
)

// checkAndIncrementScript atomically checks a single fixed-window
// counter against `limit` and increments only if the request is
// admitted, setting the key's TTL to the window length on first write.
const checkAndIncrementScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
	local ttl = redis.call("TTL", key)
	if ttl < 0 then
		ttl = window
	end
	return {0, current, ttl}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
	redis.call("EXPIRE", key, window)
end
local ttl = redis.call("TTL", key)
return {1, newVal, ttl}
`

// Result is the outcome of an Allow check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces fixed-window limits sharded by IP prefix.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
}

// New returns a Limiter backed by the given Redis client.
func New(client *redis.Client) *Limiter {
	return &Limiter{redis: client, script: redis.NewScript(checkAndIncrementScript)}
}

// Shard derives the rate-limit shard key from a client IP: the first
// two octets for IPv4 (so one bad /16 saturates its own shard), the
// /32 prefix for IPv6 (spec §9's resolved open question).
func Shard(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d", v4[0], v4[1])
	}
	return parsed.Mask(net.CIDRMask(32, 128)).String()
}

// Allow checks and, if admitted, increments the counter for
// (routeClass, ip's shard, current window). limit is clamped to
// [1, 10000] and window to [1, 86400] seconds per spec §4.7.
func (l *Limiter) Allow(ctx context.Context, routeClass RouteClass, ip string, limit int, windowSeconds int) (Result, error) {
	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if windowSeconds < minWindow {
		windowSeconds = minWindow
	}
	if windowSeconds > maxWindow {
		windowSeconds = maxWindow
	}

	shard := Shard(ip)
	windowStart := time.Now().Unix() / int64(windowSeconds)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", routeClass, shard, windowStart)

	res, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSeconds).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: check failed: %w", err)
	}

	allowed := res[0].(int64) == 1
	current := res[1].(int64)
	ttl := res[2].(int64)

	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.Now().Add(time.Duration(ttl) * time.Second)

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

// Close releases the underlying Redis connection.
func (l *Limiter) Close() error {
	return l.redis.Close()
}
