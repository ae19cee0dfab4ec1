package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket pacing outbound provider requests. One request
// costs one token; tokens refill continuously at the configured rate.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	tokens     float64
	burst      float64
	lastUpdate time.Time
}

// New creates a limiter allowing rps requests per second with the given
// burst capacity. A burst below 1 is raised to 1 so a single request can
// always eventually proceed.
func New(rps float64, burst float64) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:       rps,
		tokens:     burst,
		burst:      burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, retry := l.take()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// take attempts to consume one token, returning how long to wait before
// retrying when the bucket is empty.
func (l *Limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastUpdate = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true, 0
	}

	deficit := 1.0 - l.tokens
	return false, time.Duration(deficit / l.rate * float64(time.Second))
}
