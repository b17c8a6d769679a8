package resilience

import (
	"strings"
	"time"
)

// Config holds the shared retry and breaker settings. Operations overrides the retry
// settings per operation name ("ollama.generate") or per collaborator prefix ("minio.*").
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	Operations map[string]RetryPolicy
}

// RetryPolicy overrides the shared retry settings. Zero fields inherit them.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,

		Operations: DefaultOperations(),
	}
}

// DefaultOperations tunes retries to the pipeline's collaborators. A generation call
// already takes seconds, so it retries once with a longer pause. The event relay is
// best effort and must not hold a run back, so it never retries. Object store calls
// back off further than queue publishes.
func DefaultOperations() map[string]RetryPolicy {
	return map[string]RetryPolicy{
		"ollama.generate": {MaxAttempts: 2, InitialBackoff: time.Second, MaxBackoff: 2 * time.Second},
		"nats.relay":      {MaxAttempts: 1},
		"minio.*":         {InitialBackoff: 200 * time.Millisecond, MaxBackoff: time.Second},
	}
}

// retryFor resolves the retry settings of operation: exact name first, then "<prefix>.*".
func (c Config) retryFor(operation string) RetryPolicy {
	out := RetryPolicy{
		MaxAttempts:    c.RetryMaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		Multiplier:     c.RetryMultiplier,
	}

	override, ok := c.Operations[operation]
	if !ok {
		if prefix, _, found := strings.Cut(operation, "."); found {
			override, ok = c.Operations[prefix+".*"]
		}
	}
	if !ok {
		return out
	}

	if override.MaxAttempts > 0 {
		out.MaxAttempts = override.MaxAttempts
	}
	if override.InitialBackoff > 0 {
		out.InitialBackoff = override.InitialBackoff
	}
	if override.MaxBackoff > 0 {
		out.MaxBackoff = override.MaxBackoff
	}
	if override.Multiplier >= 1.0 {
		out.Multiplier = override.Multiplier
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
