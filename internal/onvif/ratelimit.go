package onvif

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/metrics"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// RateLimitStore selects where request counters live
type RateLimitStore string

const (
	// RateLimitStoreMemory counts per process
	RateLimitStoreMemory RateLimitStore = "memory"
	// RateLimitStoreRedis shares counters between instances
	RateLimitStoreRedis RateLimitStore = "redis"
)

// RateLimitConfig configures the per-client limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	Store             RateLimitStore
	// Redis is required for RateLimitStoreRedis.
	Redis     *redis.Client
	KeyPrefix string
}

// NewRateLimiter builds a limiter keyed by client IP.
func NewRateLimiter(cfg RateLimitConfig) (*limiter.Limiter, error) {
	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  int64(cfg.RequestsPerMinute),
	}

	var store limiter.Store
	switch cfg.Store {
	case RateLimitStoreRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis rate limit store requires a redis client")
		}
		var err error
		store, err = limiterRedis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{
			Prefix: cfg.KeyPrefix + "ratelimit",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
	default:
		store = memory.NewStore()
	}

	return limiter.New(store, rate), nil
}

// rateLimit wraps next so that clients over the limit get a 429 carrying a
// SOAP fault.
func rateLimit(l *limiter.Limiter, m metrics.Recorder, route string, next http.Handler) http.Handler {
	mw := stdlib.NewMiddleware(l, stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
		m.RecordRateLimited(route)
		writeSOAP(w, http.StatusTooManyRequests,
			soap.FaultEnvelope(soap.NewFault(soap.FaultCodeReceiver, "", "Too many requests")))
	}))
	return mw.Handler(next)
}
