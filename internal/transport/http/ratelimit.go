package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL           = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per user, shared by the user's
// sockets and REST calls so reconnecting does not refill it.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	limit rate.Limit
	burst int
	now   func() time.Time

	startCleanup sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
}

// newLimiterPool returns a pool allowing rps events per second with the given burst.
// A non-positive rps disables limiting.
func newLimiterPool(rps float64, burst int) *limiterPool {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
		if burst <= 0 {
			burst = 1
		}
	}
	return &limiterPool{
		m:      make(map[string]*limiterEntry),
		limit:  limit,
		burst:  burst,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: p.now()}
	return l
}

// Allow reports whether key may perform one more event now.
func (p *limiterPool) Allow(key string) bool {
	if p == nil || p.limit == rate.Inf {
		return true
	}
	return p.get(key).Allow()
}

// Close stops the cleanup goroutine.
func (p *limiterPool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := p.now().Add(-limiterTTL)
			p.mu.Lock()
			for k, e := range p.m {
				if e.lastSeen.Before(cutoff) {
					delete(p.m, k)
				}
			}
			p.mu.Unlock()
		case <-p.stopCh:
			return
		}
	}
}
