package stream

import (
	"testing"
	"time"
)

func TestDefaultBackoffFixedForever(t *testing.T) {
	b := DefaultBackoff()
	for _, attempt := range []int{1, 2, 10, 1000, 1_000_000} {
		d, ok := b.Next(attempt)
		if !ok {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if d != 3*time.Second {
			t.Errorf("attempt %d: expected 3s, got %v", attempt, d)
		}
	}
}

func TestZeroBackoffUsesDefaultDelay(t *testing.T) {
	var b Backoff
	if d, ok := b.Next(1); !ok || d != DefaultReconnectDelay {
		t.Errorf("expected %v, got %v %v", DefaultReconnectDelay, d, ok)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := Backoff{Delay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}
	want := []time.Duration{1, 2, 4, 8, 10, 10}
	for i, w := range want {
		d, ok := b.Next(i + 1)
		if !ok {
			t.Fatalf("attempt %d: expected retry", i+1)
		}
		if d != w*time.Second {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w*time.Second, d)
		}
	}
}

func TestBackoffMaxRetries(t *testing.T) {
	b := Backoff{Delay: time.Second, MaxRetries: 3}
	for i := 1; i <= 3; i++ {
		if _, ok := b.Next(i); !ok {
			t.Fatalf("attempt %d: expected retry", i)
		}
	}
	if _, ok := b.Next(4); ok {
		t.Error("expected retries exhausted after 3")
	}
}

func TestBackoffJitterNeverShortens(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.999} {
		b := Backoff{Delay: 4 * time.Second, Jitter: 0.5, rand: func() float64 { return r }}
		d, _ := b.Next(1)
		want := 4*time.Second + time.Duration(float64(4*time.Second)*0.5*r)
		if d != want {
			t.Errorf("rand %v: expected %v, got %v", r, want, d)
		}
		if d < 4*time.Second {
			t.Errorf("rand %v: jittered delay %v below base", r, d)
		}
	}

	real := Backoff{Delay: time.Second, Jitter: 1}
	for i := 0; i < 100; i++ {
		d, _ := real.Next(1)
		if d < time.Second || d > 2*time.Second {
			t.Fatalf("jittered delay %v out of [1s,2s]", d)
		}
	}
}

func TestBackoffHugeAttemptDoesNotOverflow(t *testing.T) {
	b := Backoff{Delay: time.Second, Multiplier: 10}
	d, ok := b.Next(500)
	if !ok || d <= 0 {
		t.Errorf("expected positive delay, got %v", d)
	}
}
