package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physio-outreach/pkg/errors"
	"github.com/jwalitptl/physio-outreach/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// ClientTTL is how long an idle client's limiter is remembered.
	ClientTTL time.Duration
}

// RateLimiter keeps one token bucket per client IP. Every scan walks the
// whole patient table, so the limits are meant to be low.
type RateLimiter struct {
	rate    rate.Limit
	burst   int
	mu      sync.Mutex
	clients *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	ttl := config.ClientTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		rate:    config.Rate,
		burst:   config.Burst,
		clients: cache.New(ttl, 2*ttl),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, found := rl.clients.Get(key); found {
		l := v.(*rate.Limiter)
		rl.clients.SetDefault(key, l)
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.clients.SetDefault(key, l)
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			httputil.RespondWithError(c, errors.TooManyRequests())
			return
		}
		c.Next()
	}
}
