// Package resilience classifies provider failures and provides the retry and
// per-provider back-off primitives used around every external call.
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CooldownConfig controls per-provider back-off windows.
type CooldownConfig struct {
	// DefaultWindow is used when a rate-limit response carries no
	// Retry-After hint. Default: 30s.
	DefaultWindow time.Duration `yaml:"default_window" mapstructure:"default_window"`

	// MaxWindow caps provider-supplied Retry-After values. Default: 10m.
	MaxWindow time.Duration `yaml:"max_window" mapstructure:"max_window"`

	// FailureThreshold opens a window after this many consecutive
	// provider errors. Zero disables failure-based cooldowns.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// DefaultCooldownConfig returns sensible defaults.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		DefaultWindow:    30 * time.Second,
		MaxWindow:        10 * time.Minute,
		FailureThreshold: 5,
	}
}

type cooldownState struct {
	until    time.Time
	failures int
}

// Cooldowns tracks back-off windows independently for each provider, so a
// rate limit on one source never slows calls to another.
type Cooldowns struct {
	cfg     CooldownConfig
	mu      sync.RWMutex
	states  map[string]*cooldownState
	nowFunc func() time.Time
}

// NewCooldowns creates an empty cooldown registry.
func NewCooldowns(cfg CooldownConfig) *Cooldowns {
	def := DefaultCooldownConfig()
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = def.DefaultWindow
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = def.MaxWindow
	}
	return &Cooldowns{
		cfg:     cfg,
		states:  make(map[string]*cooldownState),
		nowFunc: time.Now,
	}
}

// Check returns a CooldownError while provider is backing off.
func (c *Cooldowns) Check(provider string) error {
	c.mu.RLock()
	st, ok := c.states[provider]
	var until time.Time
	if ok {
		until = st.until
	}
	c.mu.RUnlock()

	if remaining := until.Sub(c.nowFunc()); remaining > 0 {
		return &CooldownError{Provider: provider, Remaining: remaining}
	}
	return nil
}

// Trip opens a window for provider. A zero retryAfter uses DefaultWindow.
// An existing longer window is kept.
func (c *Cooldowns) Trip(provider string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = c.cfg.DefaultWindow
	}
	if retryAfter > c.cfg.MaxWindow {
		retryAfter = c.cfg.MaxWindow
	}
	until := c.nowFunc().Add(retryAfter)

	st := c.state(provider)
	c.mu.Lock()
	if until.After(st.until) {
		st.until = until
	}
	c.mu.Unlock()

	zap.L().Warn("provider cooling down",
		zap.String("provider", provider),
		zap.Duration("window", retryAfter),
	)
}

// Record updates the consecutive failure count for provider after a call.
// Rate limits trip a window directly; after FailureThreshold consecutive
// provider errors a DefaultWindow is opened.
func (c *Cooldowns) Record(provider string, err error) {
	if rl, ok := AsRateLimited(err); ok {
		c.Trip(provider, rl.RetryAfter)
		return
	}

	st := c.state(provider)
	c.mu.Lock()
	if err == nil || IsNoMatch(err) || IsCooldown(err) {
		st.failures = 0
		c.mu.Unlock()
		return
	}
	st.failures++
	tripped := c.cfg.FailureThreshold > 0 && st.failures >= c.cfg.FailureThreshold
	if tripped {
		st.failures = 0
	}
	c.mu.Unlock()

	if tripped {
		c.Trip(provider, c.cfg.DefaultWindow)
	}
}

// Active returns the remaining window per provider currently backing off.
func (c *Cooldowns) Active() map[string]time.Duration {
	now := c.nowFunc()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]time.Duration)
	for name, st := range c.states {
		if d := st.until.Sub(now); d > 0 {
			out[name] = d
		}
	}
	return out
}

func (c *Cooldowns) state(provider string) *cooldownState {
	c.mu.RLock()
	st, ok := c.states[provider]
	c.mu.RUnlock()
	if ok {
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok = c.states[provider]; ok {
		return st
	}
	st = &cooldownState{}
	c.states[provider] = st
	return st
}
