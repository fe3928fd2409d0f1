package sources

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"resolvarr/models"
)

// Aggregator fans one content request out to all configured sources
// concurrently and merges the answers. A slow or failing source never
// fails the whole request; its contribution is simply absent.
type Aggregator struct {
	sources []Source
	timeout time.Duration
}

// NewAggregator builds an aggregator over the given sources with a
// per-source query timeout.
func NewAggregator(timeout time.Duration, srcs ...Source) *Aggregator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Aggregator{sources: srcs, timeout: timeout}
}

// SourceCount reports how many sources the aggregator queries.
func (a *Aggregator) SourceCount() int {
	return len(a.sources)
}

// Fetch queries every source in parallel and returns the deduplicated
// union, ordered by source configuration order and within each source by
// the order the source returned. Each candidate is tagged with the name
// of the source that produced it.
func (a *Aggregator) Fetch(ctx context.Context, req QueryRequest) []models.StreamCandidate {
	if len(a.sources) == 0 {
		return nil
	}

	started := time.Now()

	// Each task writes its own pre-sized slot and stamps provenance itself:
	// tasks finish in any order, so nothing may be attributed by position in
	// a completion-ordered result list.
	batches := make([][]models.StreamCandidate, len(a.sources))
	var wg conc.WaitGroup
	for i, src := range a.sources {
		i, src := i, src
		wg.Go(func() {
			queryCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			found, err := src.Query(queryCtx, req)
			if err != nil {
				log.Printf("[aggregator] source %s failed for %s: %v", src.Name(), req.ContentID, err)
				return
			}
			for j := range found {
				if found[j].Source == "" {
					found[j].Source = src.Name()
				}
			}
			batches[i] = found
		})
	}
	wg.Wait()

	merged := make([]models.StreamCandidate, 0, 64)
	seen := make(map[string]struct{})
	for _, batch := range batches {
		for _, candidate := range batch {
			if !candidate.Playable() {
				continue
			}
			key := dedupKey(candidate)
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, candidate)
		}
	}

	log.Printf("[aggregator] %d candidates for %s from %d sources in %s",
		len(merged), req.ContentID, len(a.sources), time.Since(started).Round(time.Millisecond))
	return merged
}

// dedupKey identifies a candidate across sources: same torrent plus same
// in-torrent file is the same offer regardless of who listed it.
func dedupKey(c models.StreamCandidate) string {
	if c.InfoHash != "" {
		return fmt.Sprintf("%s:%d", strings.ToLower(c.InfoHash), c.FileIndex)
	}
	return "url:" + c.URL
}
