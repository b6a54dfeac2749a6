package link

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
	}
	if d := NextBackoffDelay(cfg, 1, nil); d != time.Millisecond {
		t.Fatalf("attempt 1 delay = %v, want 1ms", d)
	}
	if d := NextBackoffDelay(cfg, 3, nil); d != 4*time.Millisecond {
		t.Fatalf("attempt 3 delay = %v, want 4ms", d)
	}
	if d := NextBackoffDelay(cfg, 10, nil); d != 8*time.Millisecond {
		t.Fatalf("attempt 10 delay = %v, want capped 8ms", d)
	}
}

func TestBackoffZeroInitialDisables(t *testing.T) {
	if d := NextBackoffDelay(BackoffConfig{}, 5, nil); d != 0 {
		t.Fatalf("zero config delay = %v, want 0", d)
	}
}

func TestBackoffJitterStaysWithinEnvelope(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}
	// nil rng pins the jitter factor at 0.5.
	if d := NextBackoffDelay(cfg, 3, nil); d != 2*time.Millisecond {
		t.Fatalf("jittered attempt 3 delay = %v, want 2ms", d)
	}
}
