package debrid

import (
	"context"
	"fmt"
	"log"
	"time"
)

// PollState is the resolver's view of a torrent while waiting for the
// provider to finish caching it.
type PollState int

const (
	PollQueued PollState = iota
	PollDownloading
	PollReady
	PollStuck
	PollDead
	PollError
)

func (s PollState) String() string {
	switch s {
	case PollQueued:
		return "queued"
	case PollDownloading:
		return "downloading"
	case PollReady:
		return "ready"
	case PollStuck:
		return "stuck"
	case PollDead:
		return "dead"
	case PollError:
		return "error"
	default:
		return "unknown"
	}
}

// RetryLaterError is a transient outcome: the torrent is not ready yet but
// a later attempt may succeed. The reason is surfaced to the caller.
type RetryLaterError struct {
	Reason string
}

func (e *RetryLaterError) Error() string {
	return e.Reason
}

// TorrentFailedError is a terminal torrent state (dead on the hoster,
// provider-side error); retrying the same torrent will not help.
type TorrentFailedError struct {
	Status string
}

func (e *TorrentFailedError) Error() string {
	return fmt.Sprintf("torrent failed with status %q", e.Status)
}

const (
	// stuckAfterIterations reports a stuck download only after this many
	// consecutive polls with literal zero progress. Partial progress,
	// however slow, is never treated as failure.
	stuckAfterIterations = 8
	// queuedActionAfter converts a long unbroken queued run into a
	// "requires manual action" outcome instead of retrying forever.
	queuedActionAfter = 16
)

// Backoff returns how long to wait before the next poll. Short while
// queued, longer once real download progress appears.
type Backoff func(state PollState, iteration int) time.Duration

func defaultBackoff(state PollState, iteration int) time.Duration {
	if state == PollDownloading {
		return 5 * time.Second
	}
	return 2 * time.Second
}

// Poller repeatedly queries torrent status until it is ready with files,
// terminally failed, or the iteration budget is exhausted. The sleep and
// backoff hooks exist so tests run without wall-clock time.
type Poller struct {
	provider Provider
	budget   int
	backoff  Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPoller builds a poller with the given iteration budget.
func NewPoller(provider Provider, budget int) *Poller {
	if budget <= 0 {
		budget = 24
	}
	return &Poller{
		provider: provider,
		budget:   budget,
		backoff:  defaultBackoff,
		sleep:    sleepCtx,
	}
}

// SetBackoff replaces the backoff strategy; tests inject a zero delay.
func (p *Poller) SetBackoff(b Backoff) {
	p.backoff = b
}

// SetSleep replaces the sleep function; tests inject a no-op.
func (p *Poller) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	p.sleep = sleep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitReady polls until the torrent is ready with files. Transient
// non-ready outcomes come back as *RetryLaterError, terminal torrent
// failures as *TorrentFailedError.
func (p *Poller) WaitReady(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	var (
		lastProgress int64
		zeroRun      int
		queuedRun    int
		sawProgress  bool
	)

	for iteration := 0; iteration < p.budget; iteration++ {
		info, err := p.provider.GetTorrentInfo(ctx, torrentID)
		if err != nil {
			return nil, err
		}

		state := classify(info)
		log.Printf("[poll] torrent %s iteration %d: state=%s progress=%d/%d",
			torrentID, iteration, state, info.Progress, info.Bytes)

		switch state {
		case PollReady:
			if len(info.Files) == 0 {
				// Ready without a file list yet; treat as still caching.
				break
			}
			return info, nil
		case PollDead, PollError:
			return nil, &TorrentFailedError{Status: info.Status}
		}

		// Waiting for selection counts as queued: select everything, then
		// fall through to the queued-run accounting and backoff below.
		if info.Status == StatusWaitingSelection {
			if err := p.provider.SelectFiles(ctx, torrentID, nil); err != nil {
				return nil, fmt.Errorf("select files: %w", err)
			}
		}

		if info.Progress > lastProgress {
			sawProgress = true
			zeroRun = 0
			lastProgress = info.Progress
		} else if info.Progress == 0 {
			zeroRun++
		}

		if state == PollQueued && !sawProgress {
			queuedRun++
			if queuedRun >= queuedActionAfter {
				return nil, &RetryLaterError{Reason: "torrent queued too long, requires manual action"}
			}
		} else {
			queuedRun = 0
		}

		if state == PollDownloading && !sawProgress && zeroRun >= stuckAfterIterations {
			return nil, &RetryLaterError{Reason: "download stuck with no progress"}
		}

		if err := p.sleep(ctx, p.backoff(state, iteration)); err != nil {
			return nil, err
		}
	}

	return nil, &RetryLaterError{Reason: "torrent still caching, retry later"}
}

// classify maps a provider status onto the poll state machine.
func classify(info *TorrentInfo) PollState {
	switch info.Status {
	case StatusDownloaded:
		return PollReady
	case StatusQueued, StatusWaitingSelection:
		return PollQueued
	case StatusDownloading:
		return PollDownloading
	case StatusDead:
		return PollDead
	case StatusError:
		return PollError
	default:
		return PollQueued
	}
}
