package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"mdshare/pkg/logger"
	"mdshare/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// limitKey prefers the authenticated user so clients behind one NAT do not
// share a bucket. Needs OptionalAuth earlier in the chain.
func limitKey(r *http.Request) string {
	if userID := CurrentUser(r.Context()); userID != "" {
		return "sub:" + userID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func tooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"Rate limit exceeded"}`))
}

// RateLimit enforces an in-memory token bucket per key. rps is the refill
// rate, burst the bucket size.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var limiters sync.Map // key -> *rate.Limiter
	get := func(key string) *rate.Limiter {
		if v, ok := limiters.Load(key); ok {
			return v.(*rate.Limiter)
		}
		v, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
		return v.(*rate.Limiter)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !get(limitKey(r)).Allow() {
				metrics.RateLimitRejected.WithLabelValues("memory").Inc()
				tooManyRequests(w, 1)
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// RedisRateLimit is a fixed-window limiter shared by every instance that
// talks to the same Redis. Each window admits floor(rps*window)+burst
// requests per key. The counter and its expiry are set in one MULTI/EXEC.
// A nil client, or a failing Redis, falls back to RateLimit.
func RedisRateLimit(client *redis.Client, rps float64, burst int, window time.Duration) func(http.Handler) http.Handler {
	if client == nil {
		return RateLimit(rps, burst)
	}
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int(rps*float64(windowSeconds)) + burst
	ttl := time.Duration(windowSeconds+1) * time.Second
	local := RateLimit(rps, burst)

	return func(next http.Handler) http.Handler {
		fallback := local(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := time.Now().Unix() / int64(windowSeconds)
			redisKey := fmt.Sprintf("rl:%s:%d", limitKey(r), bucket)

			var incr *redis.IntCmd
			_, err := client.TxPipelined(r.Context(), func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(r.Context(), redisKey)
				pipe.Expire(r.Context(), redisKey, ttl)
				return nil
			})
			if err != nil {
				metrics.RateLimitFallbacks.Inc()
				logger.Sugar.Warnf("Rate limit check failed, using in-memory limiter: %v", err)
				fallback.ServeHTTP(w, r)
				return
			}
			if int(incr.Val()) > allowedPerWindow {
				metrics.RateLimitRejected.WithLabelValues("redis").Inc()
				tooManyRequests(w, windowSeconds)
				return
			}
			metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
