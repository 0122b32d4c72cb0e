package pool

import (
	"sync"
	"time"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// circuit. The default is deliberately low: two failures in a row
	// against a single remote provider is already a strong signal.
	// Default: 2
	Threshold int

	// Cooldown is the base open duration. Repeated openings stretch it
	// by the current multiplier.
	// Default: 60 seconds
	Cooldown time.Duration

	// MaxMultiplier caps the exponential open-duration growth.
	// Default: 8
	MaxMultiplier float64

	// OnStateChange is called when the breaker opens or closes.
	OnStateChange func(open bool)
}

// Breaker is a process-wide circuit breaker counting consecutive
// failures across all requests. A single success resets the counter and
// halves the cooldown multiplier, so the system recovers gradually
// instead of snapping back to full throughput.
type Breaker struct {
	cfg BreakerConfig

	mu         sync.Mutex
	open       bool
	openUntil  time.Time
	failures   int
	multiplier float64
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.MaxMultiplier < 1 {
		cfg.MaxMultiplier = 8
	}

	return &Breaker{
		cfg:        cfg,
		multiplier: 1,
	}
}

// Allow reports whether a request may proceed. When denied, the second
// return value is the remaining cool-down.
func (b *Breaker) Allow() (bool, time.Duration) {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true, 0
	}
	if now.Before(b.openUntil) {
		return false, b.openUntil.Sub(now)
	}

	// Cool-down elapsed: let the next request probe the provider. The
	// breaker stays primed so the probe's failure re-opens it at once.
	b.open = false
	b.failures = b.cfg.Threshold - 1
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(false)
	}
	return true, 0
}

// RecordFailure notes a failed request and opens the circuit once the
// consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.open || b.failures < b.cfg.Threshold {
		return
	}

	b.open = true
	b.openUntil = time.Now().Add(time.Duration(float64(b.cfg.Cooldown) * b.multiplier))
	b.multiplier *= 2
	if b.multiplier > b.cfg.MaxMultiplier {
		b.multiplier = b.cfg.MaxMultiplier
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(true)
	}
}

// RecordSuccess resets the consecutive-failure counter and halves the
// cooldown multiplier (multiplicative decrease).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.multiplier /= 2
	if b.multiplier < 1 {
		b.multiplier = 1
	}
}

// BreakerState is a read-only snapshot for observability.
type BreakerState struct {
	Open                bool
	OpenUntil           time.Time
	ConsecutiveFailures int
	Multiplier          float64
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerState{
		Open:                b.open,
		OpenUntil:           b.openUntil,
		ConsecutiveFailures: b.failures,
		Multiplier:          b.multiplier,
	}
}
