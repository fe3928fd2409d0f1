package selector

import (
	"testing"

	"resolvarr/config"
	"resolvarr/models"
)

func settings() config.SelectionSettings {
	return config.SelectionSettings{
		MaxSizeMovieGB:   18,
		MaxSizeEpisodeGB: 6,
		MaxResults:       80,
	}
}

func episodeRequest(season, episode int) Request {
	return Request{MediaType: models.MediaTypeSeries, Season: season, Episode: episode}
}

// Two sources return candidates for S01E01; one matches s01e01, the other
// only s01e02 — after filtering, only the former remains.
func TestSelectFiltersToTargetEpisode(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Show.s01e01.1080p.WEB-DL", Resolution: "1080p", FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Show.S01E02.1080p.WEB-DL", Resolution: "1080p", FileIndex: -1},
	}

	result := s.Select(candidates, episodeRequest(1, 1))
	if result.Primary == nil {
		t.Fatalf("expected a primary candidate")
	}
	if result.Primary.InfoHash != "aaa" {
		t.Fatalf("expected the S01E01 candidate, got %q", result.Primary.Title)
	}
	for _, c := range result.Ranked {
		if c.InfoHash == "bbb" {
			t.Fatalf("wrong-episode candidate should have been filtered")
		}
	}
}

func TestSelectKeepsSeasonPacks(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Show.Season.1.Complete.1080p", Resolution: "1080p", FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Show.S02E01.1080p", Resolution: "1080p", FileIndex: -1},
	}

	result := s.Select(candidates, episodeRequest(1, 3))
	if len(result.Ranked) != 1 || result.Ranked[0].InfoHash != "aaa" {
		t.Fatalf("season pack for the target season should survive filtering")
	}
}

// Episode filtering never empties the result when that would leave zero
// candidates.
func TestSelectFallsBackToUnfilteredSet(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Show.S01E05.1080p", Resolution: "1080p", FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Show.S01E06.720p", Resolution: "720p", FileIndex: -1},
	}

	result := s.Select(candidates, episodeRequest(1, 1))
	if result.Primary == nil {
		t.Fatalf("filter emptying the list should fall back to the unfiltered set")
	}
	if len(result.Ranked) != 2 {
		t.Fatalf("expected both candidates kept, got %d", len(result.Ranked))
	}
}

func TestSelectAppliesExclusionTerms(t *testing.T) {
	cfg := settings()
	cfg.FilterOutTerms = []string{"CAM", "hindi"}
	s := New(cfg, nil)

	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Movie.2024.HDCAM.1080p", Resolution: "1080p", FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Movie.2024.Hindi.720p", Resolution: "720p", FileIndex: -1},
		{Source: "gamma", InfoHash: "ccc", Title: "Movie.2024.1080p.WEB-DL", Resolution: "1080p", FileIndex: -1},
	}

	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if len(result.Ranked) != 1 || result.Ranked[0].InfoHash != "ccc" {
		t.Fatalf("exclusion terms should drop matching candidates, got %d survivors", len(result.Ranked))
	}
}

func TestSelectExclusionMayEmptyTheList(t *testing.T) {
	cfg := settings()
	cfg.FilterOutTerms = []string{"cam"}
	s := New(cfg, nil)

	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Movie.2024.HDCAM", FileIndex: -1},
	}
	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if result.Primary != nil {
		t.Fatalf("exclusion filter is allowed to empty the list")
	}
}

// Primary resolves to 1080p, a distinct 720p candidate exists — the
// selector emits primary(1080p) + fallback(720p), never two 1080p entries.
func TestSelectFallbackQualityOneRungDown(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Movie.1080p.BluRay", Resolution: "1080p", SizeBytes: 8 << 30, FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Movie.1080p.WEB-DL", Resolution: "1080p", SizeBytes: 7 << 30, FileIndex: -1},
		{Source: "gamma", InfoHash: "ccc", Title: "Movie.720p.WEB-DL", Resolution: "720p", SizeBytes: 3 << 30, FileIndex: -1},
	}

	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if result.Primary == nil || result.Primary.Resolution != "1080p" {
		t.Fatalf("expected a 1080p primary")
	}
	if result.FallbackQuality == nil {
		t.Fatalf("expected a fallback-quality candidate")
	}
	if result.FallbackQuality.Resolution != "720p" {
		t.Fatalf("fallback should sit one rung below the primary, got %s", result.FallbackQuality.Resolution)
	}
}

func TestSelectFallbackSkipsMissingRung(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Movie.2160p", Resolution: "2160p", SizeBytes: 15 << 30, FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Movie.720p", Resolution: "720p", SizeBytes: 3 << 30, FileIndex: -1},
	}

	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if result.FallbackQuality == nil || result.FallbackQuality.Resolution != "720p" {
		t.Fatalf("with no 1080p present, fallback should take the extra step to 720p")
	}
}

func TestSelectSecondOpinionIsRunnerUp(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "alpha", InfoHash: "aaa", Title: "Movie.1080p", Resolution: "1080p", SizeBytes: 8 << 30, FileIndex: -1},
		{Source: "beta", InfoHash: "bbb", Title: "Movie.1080p.x265", Resolution: "1080p", SizeBytes: 6 << 30, FileIndex: -1},
	}
	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if result.SecondOpinion == nil {
		t.Fatalf("expected a second-opinion candidate")
	}
	if result.SecondOpinion.InfoHash == result.Primary.InfoHash {
		t.Fatalf("second opinion must differ from the primary")
	}
}

func TestSelectEmptyInputYieldsEmptyResult(t *testing.T) {
	s := New(settings(), nil)
	result := s.Select(nil, Request{MediaType: models.MediaTypeMovie})
	if result.Primary != nil || result.FallbackQuality != nil || result.SecondOpinion != nil || len(result.Ranked) != 0 {
		t.Fatalf("empty input should yield an empty result")
	}
}

// Equal scores break toward pre-resolved provenance, then smaller size.
func TestSelectTieBreaks(t *testing.T) {
	s := New(settings(), nil)
	candidates := []models.StreamCandidate{
		{Source: "plain", InfoHash: "aaa", Title: "Movie.1080p", Resolution: "1080p", SizeBytes: 8 << 30, FileIndex: -1},
		{Source: "premium", URL: "https://cdn.example/movie.mkv", Title: "Movie.1080p", Resolution: "1080p", SizeBytes: 8 << 30, FileIndex: -1, Resolved: true},
	}
	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if !result.Primary.Resolved {
		t.Fatalf("pre-resolved candidate should win the tie")
	}
}

func TestSelectCapsRankedAtMaxResults(t *testing.T) {
	cfg := settings()
	cfg.MaxResults = 2
	s := New(cfg, nil)

	candidates := []models.StreamCandidate{
		{Source: "a", InfoHash: "aaa", Title: "Movie.2160p", Resolution: "2160p", SizeBytes: 10 << 30, FileIndex: -1},
		{Source: "b", InfoHash: "bbb", Title: "Movie.1080p", Resolution: "1080p", SizeBytes: 8 << 30, FileIndex: -1},
		{Source: "c", InfoHash: "ccc", Title: "Movie.720p", Resolution: "720p", SizeBytes: 4 << 30, FileIndex: -1},
	}
	result := s.Select(candidates, Request{MediaType: models.MediaTypeMovie})
	if len(result.Ranked) != 2 {
		t.Fatalf("Ranked should be capped at MaxResults, got %d", len(result.Ranked))
	}
}
