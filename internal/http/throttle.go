package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterTTL bounds how long idle client limiters are kept.
const limiterTTL = time.Hour

// ipLimiters keeps one token bucket per client address.
type ipLimiters struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
	now         func() time.Time
}

func newIPLimiters(rps float64, burst int) *ipLimiters {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiters{
		limit:       rate.Limit(rps),
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(l.lastCleanup) > limiterTTL {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = l.now()
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

func (l *ipLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// throttle rejects clients that exceed their token bucket with 429.
func (s *Server) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if !s.limiters.get(ip).Allow() {
			s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("ip", ip))
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
		}
		return next(c)
	}
}
