package ratelimiting

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Consume(key string) bool
	// Whole tokens currently available for key
	Remaining(key string) int
	// Time until key has a token available again
	RetryAfter(key string) time.Duration
	Burst() int
}

type tokenBucketRateLimiter struct {
	limiterByKey *ttlcache.Cache[string, *rate.Limiter]
	refill       rate.Limit
	burstSize    int
}

func (rateLimiter *tokenBucketRateLimiter) limiterFor(key string) *rate.Limiter {
	limiter, _ := rateLimiter.limiterByKey.GetOrSet(key, rate.NewLimiter(rateLimiter.refill, rateLimiter.burstSize))
	return limiter.Value()
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	return rateLimiter.limiterFor(key).Allow()
}

func (rateLimiter *tokenBucketRateLimiter) Remaining(key string) int {
	tokens := rateLimiter.limiterFor(key).Tokens()
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

func (rateLimiter *tokenBucketRateLimiter) RetryAfter(key string) time.Duration {
	tokens := rateLimiter.limiterFor(key).Tokens()
	if tokens >= 1 {
		return 0
	}
	if rateLimiter.refill <= 0 {
		return time.Duration(math.MaxInt64)
	}
	seconds := (1 - tokens) / float64(rateLimiter.refill)
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

func (rateLimiter *tokenBucketRateLimiter) Burst() int {
	return rateLimiter.burstSize
}

type RefillPerSecond float64
type BurstSize int

func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	limiterTTLCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](30 * time.Minute),
	)
	go limiterTTLCache.Start()

	return &tokenBucketRateLimiter{
		limiterByKey: limiterTTLCache,
		refill:       rate.Limit(refillPerSecond),
		burstSize:    int(burstSize),
	}, limiterTTLCache.Stop
}

// 100 requests per 15 minutes
func NewStandardRateLimiter() (RateLimiter, func()) {
	return NewTokenBucketRateLimiter(RefillPerSecond(100.0/(15*60)), 100)
}

// 10 requests per 15 minutes, for expensive or sensitive endpoints
func NewStrictRateLimiter() (RateLimiter, func()) {
	return NewTokenBucketRateLimiter(RefillPerSecond(10.0/(15*60)), 10)
}

type RequestRateLimiter interface {
	Consume(r *http.Request) bool
	KeyFor(r *http.Request) string
	// Set X-RateLimit-* headers, and Retry-After when the request was limited
	WriteHeaders(w http.ResponseWriter, r *http.Request, limited bool)
}

type requestBasedRateLimiter struct {
	limiter RateLimiter
	keyFunc func(r *http.Request) string
}

func (rateLimiter *requestBasedRateLimiter) Consume(r *http.Request) bool {
	return rateLimiter.limiter.Consume(rateLimiter.keyFunc(r))
}

func (rateLimiter *requestBasedRateLimiter) KeyFor(r *http.Request) string {
	return rateLimiter.keyFunc(r)
}

func (rateLimiter *requestBasedRateLimiter) WriteHeaders(w http.ResponseWriter, r *http.Request, limited bool) {
	key := rateLimiter.keyFunc(r)
	w.Header().Set("X-RateLimit-Limit", fmt.Sprint(rateLimiter.limiter.Burst()))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(rateLimiter.limiter.Remaining(key)))
	if limited {
		retryAfter := rateLimiter.limiter.RetryAfter(key)
		w.Header().Set("Retry-After", fmt.Sprint(int(math.Ceil(retryAfter.Seconds()))))
	}
}

func NewRequestBasedRateLimiter(limiter RateLimiter, keyFunc func(r *http.Request) string) RequestRateLimiter {
	return &requestBasedRateLimiter{
		limiter: limiter,
		keyFunc: keyFunc,
	}
}

func IPKeyFunc(r *http.Request) string {
	withoutPort := r.RemoteAddr

	portIndex := strings.LastIndexByte(r.RemoteAddr, ':')
	if portIndex != -1 && !strings.HasSuffix(r.RemoteAddr, "]") {
		withoutPort = r.RemoteAddr[:portIndex]
	}

	return fmt.Sprintf("ip: %s", withoutPort)
}

func UserIDKeyFunc(r *http.Request) string {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		userID = "<missing>"
	}
	return fmt.Sprintf("user-id: %.50s", userID)
}
