// Package ratelimit provides token-bucket admission control for harvest
// requests, with an optional global gate and an optional per-domain gate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate describes one token bucket: Requests tokens accrue every Per, up to a
// burst capacity of Requests. Refill is continuous-time and computed lazily
// by golang.org/x/time/rate, so no background timer runs.
type Rate struct {
	Requests int           `yaml:"requests" json:"requests"`
	Per      time.Duration `yaml:"per" json:"per"`
}

// Valid reports whether the rate is usable as a bucket configuration.
func (r Rate) Valid() bool { return r.Requests > 0 && r.Per > 0 }

func (r Rate) limit() rate.Limit {
	return rate.Limit(float64(r.Requests) / r.Per.Seconds())
}

// Config enables the global and/or per-domain gates. A request must pass
// every configured gate before navigation begins.
type Config struct {
	Global    *Rate `yaml:"global,omitempty" json:"global,omitempty"`
	PerDomain *Rate `yaml:"per_domain,omitempty" json:"per_domain,omitempty"`
}

// Limiter owns the engine's token buckets. Domain buckets are created lazily
// on first acquire for a host and live for the limiter's lifetime. Token
// acquisition order within one bucket follows x/time/rate's reservation
// queue, which is effectively FIFO.
type Limiter struct {
	global    *rate.Limiter
	perDomain *Rate

	mu      sync.Mutex
	domains map[string]*rate.Limiter
}

// New builds a limiter from config. A nil config or one with no gates yields
// a limiter whose Acquire never blocks.
func New(cfg *Config) (*Limiter, error) {
	l := &Limiter{domains: make(map[string]*rate.Limiter)}
	if cfg == nil {
		return l, nil
	}
	if cfg.Global != nil {
		if !cfg.Global.Valid() {
			return nil, fmt.Errorf("invalid global rate: %d requests per %v", cfg.Global.Requests, cfg.Global.Per)
		}
		l.global = rate.NewLimiter(cfg.Global.limit(), cfg.Global.Requests)
	}
	if cfg.PerDomain != nil {
		if !cfg.PerDomain.Valid() {
			return nil, fmt.Errorf("invalid per-domain rate: %d requests per %v", cfg.PerDomain.Requests, cfg.PerDomain.Per)
		}
		perDomain := *cfg.PerDomain
		l.perDomain = &perDomain
	}
	return l, nil
}

// Acquire blocks until one token is available on every configured gate for
// the given host. It fails only when ctx is cancelled; backpressure is
// expressed purely as suspension. The domain map lock is never held while
// waiting, so acquires on distinct hosts do not block each other.
func (l *Limiter) Acquire(ctx context.Context, host string) error {
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}
	if l.perDomain != nil {
		if err := l.domainLimiter(host).Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AcquireWait is Acquire plus the time spent suspended, for metrics.
func (l *Limiter) AcquireWait(ctx context.Context, host string) (time.Duration, error) {
	start := time.Now()
	err := l.Acquire(ctx, host)
	return time.Since(start), err
}

func (l *Limiter) domainLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.domains[host]
	if !ok {
		lim = rate.NewLimiter(l.perDomain.limit(), l.perDomain.Requests)
		l.domains[host] = lim
	}
	return lim
}

// Domains returns the number of per-domain buckets created so far.
func (l *Limiter) Domains() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.domains)
}
