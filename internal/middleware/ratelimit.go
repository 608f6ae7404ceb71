package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"peerprep/interview/internal/models"
	"peerprep/interview/internal/utils"
)

const defaultLimiterEntries = 10000

// RateLimiter keeps one token bucket per client IP. The table is bounded, so
// the least recently seen clients are forgotten first.
type RateLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func NewRateLimiter(limit rate.Limit, burst, entries int) *RateLimiter {
	if entries <= 0 {
		entries = defaultLimiterEntries
	}
	cache, err := lru.New[string, *rate.Limiter](entries)
	if err != nil {
		panic(err)
	}
	return &RateLimiter{clients: cache, limit: limit, burst: burst}
}

// PerWindow allows n requests per window for each client, all of which may be
// spent at once.
func PerWindow(n int, window time.Duration) *RateLimiter {
	return NewRateLimiter(rate.Every(window/time.Duration(n)), n, 0)
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(key, lim)
	return lim
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := l.limiter(clientKey(r))
		res := lim.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			utils.JSON(w, http.StatusTooManyRequests, models.ErrorResponse{
				Code:    "rate_limited",
				Message: "Too many requests, please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
