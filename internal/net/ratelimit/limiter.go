// Package ratelimit provides per-host token-bucket limiting for outbound
// broker API calls. The broker, not this service, is the throughput
// constraint; every REST call passes through a limiter keyed by host.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits requests per host with a shared RPS/burst setting.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst capacity per host.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[host] = lim
	}
	return lim
}

// Allow reports whether a request to host may proceed immediately.
func (l *Limiter) Allow(host string) bool {
	return l.forHost(host).Allow()
}

// Wait blocks until a request to host is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.forHost(host).Wait(ctx)
}
