package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule limits one client to Max requests per Window. The budget refills
// continuously, so a client that used it all gets one request back every
// Window/Max.
type Rule struct {
	Max    int
	Window time.Duration
}

type client struct {
	lim *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket kept in memory.
// Mount it on the routes it guards with chi's r.With.
type RateLimiter struct {
	rule    Rule
	clients sync.Map // ip -> *client
	now     func() time.Time
}

// NewRateLimiter creates a limiter for rule. A rule with Max <= 0 allows
// everything.
func NewRateLimiter(rule Rule) *RateLimiter {
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	return &RateLimiter{rule: rule, now: time.Now}
}

// StartGC drops idle clients every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

// gc forgets clients idle for a whole window: their bucket is full again,
// so a fresh limiter is equivalent.
func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.clients.Range(func(key, value any) bool {
		c := value.(*client)
		c.mu.Lock()
		idle := now.Sub(c.lastSeen) > rl.rule.Window
		c.mu.Unlock()
		if idle {
			rl.clients.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.rule.Max <= 0 {
		return true
	}
	now := rl.now()
	v, ok := rl.clients.Load(ip)
	if !ok {
		every := rate.Every(rl.rule.Window / time.Duration(rl.rule.Max))
		v, _ = rl.clients.LoadOrStore(ip, &client{lim: rate.NewLimiter(every, rl.rule.Max)})
	}
	c := v.(*client)
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
	return c.lim.AllowN(now, 1)
}

// Middleware answers 429 with a JSON error once a client exceeds the rule.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip)
		w.Header().Set("Retry-After", retryAfter(rl.rule.Window/time.Duration(max(rl.rule.Max, 1))))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

func retryAfter(d time.Duration) string {
	s := int(d / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
