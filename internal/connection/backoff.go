package connection

import (
	"math/rand/v2"
	"time"
)

const (
	// DefaultBaseDelay is the wait before the first reconnect attempt.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps the reconnect wait.
	DefaultMaxDelay = 30 * time.Second
	// DefaultMaxRetries is the number of consecutive failed handshakes tolerated
	// before the session is reported FAILED.
	DefaultMaxRetries = 8

	// jitter is uniform in [0, delay/jitterDivisor).
	jitterDivisor = 2
)

// Backoff computes exponential reconnect delays with jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// Jitter returns a random duration in [0, n). Defaults to math/rand.
	Jitter func(n int64) int64
}

// Delay returns the wait before reconnect attempt n (1-based).
// Successive delays never decrease: jitter stays below half the exponential
// step, and the cap is applied after jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	base, limit := b.Base, b.Max
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if limit < base {
		limit = base
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d >= limit {
		return limit
	}

	jitter := b.Jitter
	if jitter == nil {
		jitter = rand.Int64N
	}
	if span := int64(d) / jitterDivisor; span > 0 {
		d += time.Duration(jitter(span))
	}
	return min(d, limit)
}
