// Package ratelimit throttles requests per client with token buckets grouped into tiers.
package ratelimit

import (
	"sync"
	"time"
)

// Tiers used by the default endpoint configuration. Every route in a tier draws
// from one budget per client.
const (
	// TierCodeEntry covers user-code submission for every activity, so guessing
	// codes across activities cannot multiply the budget.
	TierCodeEntry = "code-entry"
	TierStep      = "step"
	TierReset     = "reset"
	TierFieldForm = "field-form"
	TierFieldAPI  = "field-api"
	TierPage      = "page"
	TierExempt    = "exempt"
)

// Info describes the budget a request was checked against.
type Info struct {
	Allowed    bool
	Tier       string
	Limit      int
	Remaining  int
	ResetTime  time.Time     // when the bucket is full again
	RetryAfter time.Duration // until the next token, when denied
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration // buckets unused for this long are dropped
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// bucket refills continuously at rate tokens per second up to capacity.
type bucket struct {
	capacity float64
	rate     float64
	tokens   float64
	updated  time.Time
	lastSeen time.Time
}

func newBucket(rule *EndpointConfig, now time.Time) *bucket {
	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}
	window := rule.Window
	if window <= 0 {
		window = time.Minute
	}
	return &bucket{
		capacity: float64(capacity),
		rate:     float64(rule.Limit) / window.Seconds(),
		tokens:   float64(capacity),
		updated:  now,
	}
}

// take refills the bucket up to now and spends one token if there is one.
func (b *bucket) take(now time.Time) bool {
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
	}
	b.updated = now
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *bucket) until(now time.Time, tokens float64) time.Duration {
	missing := tokens - b.tokens
	if missing <= 0 || b.rate <= 0 {
		return 0
	}
	return time.Duration(missing / b.rate * float64(time.Second))
}

// Limiter tracks one bucket per client and tier.
type Limiter struct {
	config *Config
	now    func() time.Time
	rules  ruleSet

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// NewLimiter creates a limiter. A nil config allows 1000 requests a minute per client.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
			IdleTTL:         time.Hour,
		}
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		config: config,
		now:    now,
		rules: ruleSet{
			configs: config.EndpointConfigs,
			fallback: EndpointConfig{
				Tier:   TierPage,
				Path:   "default",
				Limit:  config.DefaultLimit,
				Window: config.DefaultWindow,
				Burst:  config.DefaultLimit,
			},
		},
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		l.done.Add(1)
		go l.sweepLoop(config.CleanupInterval)
	}
	return l
}

// Allow spends one token of the client's budget for the tier the request falls in.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	switch {
	case !l.config.Enabled, l.config.Whitelist[clientID]:
		return true, Info{Allowed: true}
	case l.config.Blacklist[clientID]:
		return false, Info{}
	}

	rule := l.rules.match(endpoint, method)
	if rule.Limit <= 0 {
		return true, Info{Allowed: true, Tier: rule.tier()}
	}

	now := l.now()
	key := clientID + "|" + rule.tier()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(rule, now)
		l.buckets[key] = b
	}
	allowed := b.take(now)

	info := Info{
		Allowed:   allowed,
		Tier:      rule.tier(),
		Limit:     rule.Limit,
		Remaining: int(b.tokens),
		ResetTime: now.Add(b.until(now, b.capacity)),
	}
	if !allowed {
		info.RetryAfter = b.until(now, 1)
	}
	return allowed, info
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	defer l.done.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(l.now())
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for longer than IdleTTL and returns how many it dropped.
func (l *Limiter) sweep(now time.Time) int {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := now.Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweep goroutine and waits for it. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.done.Wait()
}
