// Package admission holds the per-credential gatekeepers in front of the
// debrid resolver: a sliding-window rate limiter and a failure-count
// circuit breaker. State is created lazily per credential and swept
// periodically so idle credentials do not accumulate.
package admission

import (
	"sync"
	"time"
)

// Limiter admits at most limit requests per credential within a trailing
// window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	recents map[string][]time.Time
}

// NewLimiter builds a limiter allowing limit requests per window for each
// credential.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		recents: make(map[string][]time.Time),
	}
}

// SetClock replaces the time source; tests inject a fake.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records and admits one request for credential, or rejects it when
// the trailing window is already full.
func (l *Limiter) Allow(credential string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.recents[credential]
	kept := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.recents[credential] = kept
		return false
	}

	l.recents[credential] = append(kept, now)
	return true
}

// Sweep drops credentials whose entire window has elapsed.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for credential, recent := range l.recents {
		live := false
		for _, t := range recent {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.recents, credential)
		}
	}
}

// StartSweeping runs Sweep every interval until the returned stop function
// is called.
func (l *Limiter) StartSweeping(interval time.Duration) (stop func()) {
	return startSweeper(interval, l.Sweep)
}

func startSweeper(interval time.Duration, sweep func()) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
