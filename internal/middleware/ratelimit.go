package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/pkg/counter"
	"github.com/medicore/opd-api/pkg/errors"
)

// RateLimiter throttles per client IP over a fixed one-minute window. The
// count lives in a shared counter, so the limit holds across every running
// instance, not per process.
type RateLimiter struct {
	counter counter.Counter
	limit   int64
}

func NewRateLimiter(c counter.Counter, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{counter: c, limit: int64(requestsPerMinute)}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		window := time.Now().Unix() / 60
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), window)

		n, err := rl.counter.Incr(c.Request.Context(), key, 2*time.Minute)
		if err != nil {
			// Counter outage must not take the API down with it.
			log.Warn().Err(err).Msg("rate limit counter unavailable, allowing request")
			c.Next()
			return
		}

		if n > rl.limit {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				handler.NewErrorResponse(errors.ErrValidation, "rate limit exceeded"))
			return
		}

		c.Next()
	}
}
