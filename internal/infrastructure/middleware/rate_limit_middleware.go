package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"campusconnect/pkg/config"
	"campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a client's bucket survives without requests.
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore keeps one token bucket per client address.
type rateLimiterStore struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiterStore(limit rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		clients: make(map[string]*clientLimiter),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

func (s *rateLimiterStore) reserve(key string) *rate.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > idleLimiterTTL {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) > idleLimiterTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.ReserveN(now, 1)
}

// clientIP extracts the IP part from the request's remote address. The agent
// is never behind a proxy, so forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func abortWith(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}

// NewHTTPRateLimitMiddleware limits agent requests per client address and
// caps the number in flight.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	limits := cfg.Agent.RateLimit
	if !limits.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newRateLimiterStore(rate.Limit(limits.RequestsPerSecond), limits.Burst)

	var inFlight chan struct{}
	if limits.MaxConcurrent > 0 {
		inFlight = make(chan struct{}, limits.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inFlight != nil {
			select {
			case inFlight <- struct{}{}:
				defer func() { <-inFlight }()
			default:
				abortWith(c, errors.NewAppError(errors.ErrCodeRateLimited,
					"too many concurrent requests", http.StatusServiceUnavailable))
				return
			}
		}

		res := store.reserve(clientIP(c.Request))
		if !res.OK() {
			abortWith(c, errors.NewAppError(errors.ErrCodeRateLimited,
				"rate limit exceeded", http.StatusTooManyRequests))
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			abortWith(c, errors.NewAppError(errors.ErrCodeRateLimited,
				"rate limit exceeded", http.StatusTooManyRequests))
			return
		}
		c.Next()
	}
}
