// Package selector reduces the aggregator's raw candidate union to a small
// ordered list: episode filtering, exclusion terms, scoring, and the choice
// of a primary plus up to two secondary candidates.
package selector

import (
	"log"
	"sort"
	"strings"

	"resolvarr/config"
	"resolvarr/internal/release"
	"resolvarr/models"
)

// Request carries the target the candidates are matched against.
type Request struct {
	MediaType models.MediaType
	Season    int
	Episode   int
}

// Result is the outcome of one selection pass. FallbackQuality and
// SecondOpinion are always computed when material exists; callers decide
// per request whether to expose them, so flipping a flag needs no refetch.
type Result struct {
	Primary         *models.StreamCandidate
	FallbackQuality *models.StreamCandidate
	SecondOpinion   *models.StreamCandidate

	// Ranked is the full scored ordering, capped at the configured result
	// limit. Primary is always Ranked[0] when non-nil.
	Ranked []models.StreamCandidate
}

// Selector applies the filter/score/select stages with a pluggable scorer.
type Selector struct {
	settings config.SelectionSettings
	scorer   Scorer
}

// New builds a Selector; a nil scorer uses the built-in weights.
func New(settings config.SelectionSettings, scorer Scorer) *Selector {
	if scorer == nil {
		scorer = defaultScorer{}
	}
	return &Selector{settings: settings, scorer: scorer}
}

// Select runs the pipeline over candidates. Empty input yields an empty
// Result; the caller renders a placeholder entry, never a bare empty list.
func (s *Selector) Select(candidates []models.StreamCandidate, req Request) Result {
	if len(candidates) == 0 {
		return Result{}
	}

	survivors := s.filterEpisode(candidates, req)
	survivors = s.filterExcluded(survivors)
	if len(survivors) == 0 {
		return Result{}
	}

	sctx := s.scoreContext(req)
	scored := make([]models.StreamCandidate, len(survivors))
	copy(scored, survivors)
	for i := range scored {
		scored[i].Score = s.scorer.Score(&scored[i], sctx)
	}

	// Stable ordering: score, then pre-resolved provenance, then smaller
	// size, then the order the sources returned.
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := &scored[i], &scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Resolved != b.Resolved {
			return a.Resolved
		}
		if a.SizeBytes != b.SizeBytes && a.SizeBytes > 0 && b.SizeBytes > 0 {
			return a.SizeBytes < b.SizeBytes
		}
		return false
	})

	if max := s.settings.MaxResults; max > 0 && len(scored) > max {
		scored = scored[:max]
	}

	result := Result{Ranked: scored, Primary: &scored[0]}
	result.FallbackQuality = pickFallbackQuality(scored)
	result.SecondOpinion = pickSecondOpinion(scored, result.FallbackQuality)
	return result
}

// filterEpisode drops candidates that cannot contain the target episode.
// When that would empty the list the unfiltered set is kept: a wrong guess
// beats showing the user nothing.
func (s *Selector) filterEpisode(candidates []models.StreamCandidate, req Request) []models.StreamCandidate {
	if req.MediaType != models.MediaTypeSeries || req.Season <= 0 || req.Episode <= 0 {
		return candidates
	}
	target := release.EpisodeCode{Season: req.Season, Episode: req.Episode}

	kept := make([]models.StreamCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Season == target.Season && c.Episode == target.Episode {
			kept = append(kept, c)
			continue
		}
		if release.MatchesEpisode(candidateText(&c), target) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		log.Printf("[selector] episode filter S%02dE%02d would empty %d candidates, keeping unfiltered set",
			req.Season, req.Episode, len(candidates))
		return candidates
	}
	return kept
}

// filterExcluded drops candidates whose text contains a user exclusion
// term. Unlike the episode filter this one may legitimately empty the list.
func (s *Selector) filterExcluded(candidates []models.StreamCandidate) []models.StreamCandidate {
	if len(s.settings.FilterOutTerms) == 0 {
		return candidates
	}
	kept := make([]models.StreamCandidate, 0, len(candidates))
outer:
	for _, c := range candidates {
		text := strings.ToLower(candidateText(&c))
		for _, term := range s.settings.FilterOutTerms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term != "" && strings.Contains(text, term) {
				continue outer
			}
		}
		kept = append(kept, c)
	}
	return kept
}

func (s *Selector) scoreContext(req Request) ScoreContext {
	ceilingGB := s.settings.MaxSizeMovieGB
	if req.MediaType == models.MediaTypeSeries {
		ceilingGB = s.settings.MaxSizeEpisodeGB
	}
	return ScoreContext{
		SizeCeilingBytes:   int64(ceilingGB * float64(1<<30)),
		PreferredLanguages: s.settings.PreferredLanguages,
		Conservative:       s.settings.ConservativeSizing,
	}
}

// pickFallbackQuality finds the best candidate one rung (or two, when the
// exact rung is absent) below the primary on the resolution ladder.
func pickFallbackQuality(ranked []models.StreamCandidate) *models.StreamCandidate {
	if len(ranked) < 2 {
		return nil
	}
	primary := &ranked[0]
	rungs := release.FallbackResolutions(primary.Resolution)
	for _, rung := range rungs {
		for i := 1; i < len(ranked); i++ {
			if ranked[i].Resolution == rung {
				return &ranked[i]
			}
		}
	}
	return nil
}

// pickSecondOpinion exposes the runner-up independently of the quality
// ladder, skipping the entry already chosen as fallback.
func pickSecondOpinion(ranked []models.StreamCandidate, fallback *models.StreamCandidate) *models.StreamCandidate {
	for i := 1; i < len(ranked); i++ {
		if fallback != nil && &ranked[i] == fallback {
			continue
		}
		return &ranked[i]
	}
	return nil
}

// candidateText joins the fields episode and exclusion matching run over.
func candidateText(c *models.StreamCandidate) string {
	parts := make([]string, 0, 3)
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if c.Filename != "" {
		parts = append(parts, c.Filename)
	}
	if c.Description != "" && c.Description != c.Title {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, " ")
}
