package selector

import (
	"strings"

	"resolvarr/internal/release"
	"resolvarr/models"
)

// ScoreContext carries the request-scoped inputs the scoring function
// consumes: size ceiling, language preference order, sizing policy.
type ScoreContext struct {
	SizeCeilingBytes   int64
	PreferredLanguages []string
	Conservative       bool
}

// Scorer ranks a candidate; higher is better. Implementations must be
// pure — same candidate and context, same score.
type Scorer interface {
	Score(c *models.StreamCandidate, ctx ScoreContext) float64
}

// defaultScorer weighs resolution heaviest, then size fit under the
// ceiling, then language preference, minus the host reliability penalty.
// Sharper resolution, a size comfortably under the cap, and an earlier
// preferred language all score higher.
type defaultScorer struct{}

var _ Scorer = defaultScorer{}

func (defaultScorer) Score(c *models.StreamCandidate, ctx ScoreContext) float64 {
	score := resolutionScore(c.Resolution)
	score += sizeScore(c.SizeBytes, ctx.SizeCeilingBytes, ctx.Conservative)
	score += languageScore(c.Languages, ctx.PreferredLanguages)
	score -= c.ReliabilityPenalty * 10
	return score
}

// resolutionScore maps the ladder onto 0..45.
func resolutionScore(resolution string) float64 {
	switch release.ResolutionRank(resolution) {
	case 4:
		return 45
	case 3:
		return 38
	case 2:
		return 25
	case 1:
		return 12
	default:
		return 0
	}
}

// sizeScore rewards candidates close to, but under, the ceiling: bigger
// files generally carry better bitrate, oversize files get rejected by
// players and waste debrid quota. Unknown sizes score neutral unless
// conservative sizing is on.
func sizeScore(sizeBytes, ceiling int64, conservative bool) float64 {
	if sizeBytes <= 0 {
		if conservative {
			return 0
		}
		return 8
	}
	if ceiling <= 0 {
		return 10
	}
	if sizeBytes > ceiling {
		if conservative {
			return -20
		}
		return 0
	}
	return 20 * float64(sizeBytes) / float64(ceiling)
}

// languageScore rewards matching the preference order: the first
// preferred language is worth 15, each later position less.
func languageScore(have, preferred []string) float64 {
	if len(have) == 0 || len(preferred) == 0 {
		return 0
	}
	for rank, want := range preferred {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, lang := range have {
			if strings.ToLower(strings.TrimSpace(lang)) == want {
				score := 15 - float64(rank)*5
				if score < 3 {
					score = 3
				}
				return score
			}
		}
	}
	return 0
}
