package resilience

import (
	"strings"
	"time"
)

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

	// Overrides tune operations by name prefix ("image.fetch", "llm.").
	// The longest matching prefix wins.
	Overrides map[string]Override
}

// Override replaces the non-zero fields of the base policy.
type Override struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	BreakerMinRequests  uint32
	BreakerOpenTimeout  time.Duration
}

// Policy is the resolved retry and breaker tuning for one operation.
type Policy struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
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
	}
}

// PolicyFor resolves the tuning for operation.
func (c Config) PolicyFor(operation string) Policy {
	p := c.base()
	if o, ok := c.override(operation); ok {
		if o.RetryMaxAttempts > 0 {
			p.RetryMaxAttempts = o.RetryMaxAttempts
		}
		if o.RetryInitialBackoff > 0 {
			p.RetryInitialBackoff = o.RetryInitialBackoff
		}
		if o.RetryMaxBackoff > 0 {
			p.RetryMaxBackoff = o.RetryMaxBackoff
		}
		if o.BreakerMinRequests > 0 {
			p.BreakerMinRequests = o.BreakerMinRequests
		}
		if o.BreakerOpenTimeout > 0 {
			p.BreakerOpenTimeout = o.BreakerOpenTimeout
		}
	}
	return p.normalize()
}

func (c Config) override(operation string) (Override, bool) {
	var (
		best    Override
		bestLen = -1
	)
	for prefix, o := range c.Overrides {
		if prefix == "" || !strings.HasPrefix(operation, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = o, len(prefix)
		}
	}
	return best, bestLen >= 0
}

func (c Config) base() Policy {
	return Policy{
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialBackoff:     c.RetryInitialBackoff,
		RetryMaxBackoff:         c.RetryMaxBackoff,
		RetryMultiplier:         c.RetryMultiplier,
		BreakerMinRequests:      c.BreakerMinRequests,
		BreakerFailureRatio:     c.BreakerFailureRatio,
		BreakerOpenTimeout:      c.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: c.BreakerHalfOpenMaxCalls,
	}
}

func (p Policy) normalize() Policy {
	out := p
	def := DefaultConfig().base()

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
