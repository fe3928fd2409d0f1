package admission

import (
	"sync"
	"time"
)

type breakerState struct {
	failures    int
	lastFailure time.Time
}

// Breaker trips a credential after repeated provider failures and lets it
// through again once a quiet period has passed. The failure count resets
// after the reset window elapses with no new failures, or immediately on
// success.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	now       func() time.Time
	states    map[string]*breakerState
}

// NewBreaker builds a breaker tripping after threshold consecutive
// failures, resetting after reset without new ones.
func NewBreaker(threshold int, reset time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		reset:     reset,
		now:       time.Now,
		states:    make(map[string]*breakerState),
	}
}

// SetClock replaces the time source; tests inject a fake.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether requests for credential may proceed.
func (b *Breaker) Allow(credential string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[credential]
	if !ok {
		return true
	}
	if b.now().Sub(state.lastFailure) >= b.reset {
		delete(b.states, credential)
		return true
	}
	return state.failures < b.threshold
}

// RecordFailure counts one provider failure against credential.
func (b *Breaker) RecordFailure(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state, ok := b.states[credential]
	if !ok || now.Sub(state.lastFailure) >= b.reset {
		b.states[credential] = &breakerState{failures: 1, lastFailure: now}
		return
	}
	state.failures++
	state.lastFailure = now
}

// RecordSuccess clears the failure count for credential.
func (b *Breaker) RecordSuccess(credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, credential)
}

// Sweep drops credentials whose reset window has elapsed.
func (b *Breaker) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.reset)
	for credential, state := range b.states {
		if state.lastFailure.Before(cutoff) {
			delete(b.states, credential)
		}
	}
}

// StartSweeping runs Sweep every interval until the returned stop function
// is called.
func (b *Breaker) StartSweeping(interval time.Duration) (stop func()) {
	return startSweeper(interval, b.Sweep)
}
