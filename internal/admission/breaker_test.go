package admission

import (
	"testing"
	"time"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(3, 90*time.Second)
	b.SetClock(clock.Now)

	if !b.Allow("key") {
		t.Fatalf("fresh credential should be admitted")
	}
	for i := 0; i < 2; i++ {
		b.RecordFailure("key")
	}
	if !b.Allow("key") {
		t.Fatalf("credential below threshold should be admitted")
	}
	b.RecordFailure("key")
	if b.Allow("key") {
		t.Fatalf("credential at threshold should be rejected")
	}
}

func TestBreakerResetsAfterQuietPeriod(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(2, 90*time.Second)
	b.SetClock(clock.Now)

	b.RecordFailure("key")
	b.RecordFailure("key")
	if b.Allow("key") {
		t.Fatalf("tripped breaker should reject")
	}

	clock.Advance(91 * time.Second)
	if !b.Allow("key") {
		t.Fatalf("breaker should admit again after the reset window")
	}
}

func TestBreakerSuccessClearsFailures(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(2, 90*time.Second)
	b.SetClock(clock.Now)

	b.RecordFailure("key")
	b.RecordSuccess("key")
	b.RecordFailure("key")
	if !b.Allow("key") {
		t.Fatalf("success should have reset the failure count")
	}
}

func TestBreakerFailureCountRestartsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(2, 90*time.Second)
	b.SetClock(clock.Now)

	b.RecordFailure("key")
	clock.Advance(2 * time.Minute)
	// The old failure aged out; this starts a fresh count of one.
	b.RecordFailure("key")
	if !b.Allow("key") {
		t.Fatalf("stale failures should not count toward the threshold")
	}
}

func TestBreakerSweepDropsStaleState(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(2, 90*time.Second)
	b.SetClock(clock.Now)

	b.RecordFailure("stale")
	clock.Advance(5 * time.Minute)
	b.RecordFailure("fresh")
	b.Sweep()

	b.mu.Lock()
	_, staleKept := b.states["stale"]
	_, freshKept := b.states["fresh"]
	b.mu.Unlock()

	if staleKept {
		t.Fatalf("stale credential should be swept")
	}
	if !freshKept {
		t.Fatalf("fresh credential should survive the sweep")
	}
}
