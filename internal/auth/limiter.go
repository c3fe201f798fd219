package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// LimiterPool holds one token bucket per key (the client IP). Idle buckets are evicted.
type LimiterPool struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rps           rate.Limit
	burst         int
	startCleanup  sync.Once
	ttl           time.Duration
	cleanupPeriod time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewLimiterPool creates a pool allowing rps requests per second with the given burst.
func NewLimiterPool(rps float64, burst int) *LimiterPool {
	return &LimiterPool{
		m:             make(map[string]*limiterEntry),
		rps:           rate.Limit(rps),
		burst:         burst,
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stopCh:        make(chan struct{}),
	}
}

func (p *LimiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = time.Now()
		return e.l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: time.Now()}
	return l
}

// Allow reports whether a request for key may proceed now.
func (p *LimiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Len returns the number of tracked keys.
func (p *LimiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Shutdown stops the cleanup goroutine.
func (p *LimiterPool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *LimiterPool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evict(time.Now().Add(-p.ttl))
		case <-p.stopCh:
			return
		}
	}
}

func (p *LimiterPool) evict(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

// RateLimit answers 429 once a client IP exhausts its bucket.
func RateLimit(p *LimiterPool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]any{"ok": false, "error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
