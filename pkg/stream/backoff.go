package stream

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultReconnectDelay is the wait between a push channel closing and the
// next dial attempt.
const DefaultReconnectDelay = 3 * time.Second

// Backoff is the push channel reconnect policy. The zero value behaves like
// DefaultBackoff.
type Backoff struct {
	Delay      time.Duration // first wait; 3s when zero
	Multiplier float64       // growth per attempt; <= 1 means fixed
	MaxDelay   time.Duration // 0 = no cap
	Jitter     float64       // up to Jitter*delay is added, never subtracted
	MaxRetries int           // 0 = retry forever

	rand func() float64
}

// DefaultBackoff retries every 3 seconds forever.
func DefaultBackoff() Backoff {
	return Backoff{Delay: DefaultReconnectDelay, Multiplier: 1}
}

// Next returns the wait before reconnect attempt n (1-based) and false once
// MaxRetries is exhausted.
func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	if b.MaxRetries > 0 && attempt > b.MaxRetries {
		return 0, false
	}

	base := b.Delay
	if base <= 0 {
		base = DefaultReconnectDelay
	}
	d := float64(base)
	if b.Multiplier > 1 {
		d *= math.Pow(b.Multiplier, float64(attempt-1))
	}
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	if d > math.MaxInt64/2 {
		d = math.MaxInt64 / 2
	}
	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		d += d * b.Jitter * r()
	}
	return time.Duration(d), true
}
