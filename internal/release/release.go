// Package release parses torrent release names: episode codes, resolution,
// source quality and codec hints, plus the normalization used when matching
// declared filenames against in-torrent paths.
package release

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	// S01E02, S01 E02, S01.E02, s1e2
	episodeCodePattern = regexp.MustCompile(`(?i)\bs(\d{1,2})[ ._-]?e(\d{1,3})\b`)
	// 1x02 style
	episodeCrossPattern = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	// Season 1 / S01 without an episode part (season pack)
	seasonOnlyPattern = regexp.MustCompile(`(?i)\bs(?:eason)?[ ._-]?(\d{1,2})\b`)
	completePattern   = regexp.MustCompile(`(?i)\bcomplete\b`)

	bracketedPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	separatorPattern = regexp.MustCompile(`[ ._\-+]+`)

	resolution4KPattern = regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`)
	resolutionPattern   = regexp.MustCompile(`(?i)\b(\d{3,4})p\b`)
)

// EpisodeCode captures a parsed season/episode pair.
type EpisodeCode struct {
	Season  int
	Episode int
}

// ParseEpisode extracts the first recognizable season/episode code from a
// release string. It understands SxxEyy (including spaced and dotted
// variants) and the AxB cross notation.
func ParseEpisode(value string) (EpisodeCode, bool) {
	if strings.TrimSpace(value) == "" {
		return EpisodeCode{}, false
	}
	if m := episodeCodePattern.FindStringSubmatch(value); len(m) == 3 {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		if season > 0 && episode > 0 {
			return EpisodeCode{Season: season, Episode: episode}, true
		}
	}
	if m := episodeCrossPattern.FindStringSubmatch(value); len(m) == 3 {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		if season > 0 && episode > 0 {
			return EpisodeCode{Season: season, Episode: episode}, true
		}
	}
	return EpisodeCode{}, false
}

// IsSeasonPack reports whether the release text looks like a whole-season
// torrent for the target season: a season marker without an episode part,
// or an explicit "complete" tag.
func IsSeasonPack(value string, season int) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	if completePattern.MatchString(value) {
		return true
	}
	// A season marker only counts when the text carries no episode code;
	// "S01E03" contains "S01" but is a single episode.
	if _, ok := ParseEpisode(value); ok {
		return false
	}
	for _, m := range seasonOnlyPattern.FindAllStringSubmatch(value, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && (season <= 0 || n == season) {
			return true
		}
	}
	return false
}

// MatchesEpisode reports whether the release text plausibly contains the
// target episode: an exact episode-code match, or a season-pack marker for
// the target season (the episode is then extracted from the torrent's
// file list at resolve time).
func MatchesEpisode(value string, target EpisodeCode) bool {
	if code, ok := ParseEpisode(value); ok {
		return code == target
	}
	return IsSeasonPack(value, target.Season)
}

// Normalize lowers, ASCII-folds and flattens a release string to bare
// alphanumerics so declared filenames and in-torrent paths compare equal
// regardless of separators and bracketed tags.
func Normalize(value string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(value), "\\", "/"))
	if ext := path.Ext(base); isVideoExt(strings.ToLower(ext)) || strings.EqualFold(ext, ".torrent") {
		base = strings.TrimSuffix(base, ext)
	}
	base = bracketedPattern.ReplaceAllString(base, " ")
	base = unidecode.Unidecode(base)
	base = strings.ToLower(base)
	base = separatorPattern.ReplaceAllString(base, " ")

	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DetectResolution returns one of 2160p/1080p/720p/480p, or "" when the
// text carries no usable marker.
func DetectResolution(value string) string {
	if resolution4KPattern.MatchString(value) {
		return "2160p"
	}
	for _, m := range resolutionPattern.FindAllStringSubmatch(value, -1) {
		switch m[1] {
		case "2160":
			return "2160p"
		case "1080":
			return "1080p"
		case "720":
			return "720p"
		case "576", "480", "360":
			return "480p"
		}
	}
	return ""
}

// ResolutionRank orders recognized resolutions; higher is sharper, zero is
// unknown.
func ResolutionRank(resolution string) int {
	switch resolution {
	case "2160p":
		return 4
	case "1080p":
		return 3
	case "720p":
		return 2
	case "480p":
		return 1
	default:
		return 0
	}
}

// qualityLadder is the fixed fallback ladder, sharpest first.
var qualityLadder = []string{"2160p", "1080p", "720p", "480p"}

// FallbackResolutions returns the ladder rungs to try for a secondary
// "fallback quality" candidate, one step below the primary's resolution.
// When the exact next rung may be absent the caller gets one extra step.
func FallbackResolutions(primary string) []string {
	for i, rung := range qualityLadder {
		if rung == primary && i+1 < len(qualityLadder) {
			end := i + 3
			if end > len(qualityLadder) {
				end = len(qualityLadder)
			}
			return qualityLadder[i+1 : end]
		}
	}
	return nil
}

// DetectQuality classifies the source quality of a release.
func DetectQuality(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "remux"):
		return "remux"
	case strings.Contains(lower, "bluray"), strings.Contains(lower, "blu-ray"), strings.Contains(lower, "bdrip"), strings.Contains(lower, "brrip"):
		return "bluray"
	case strings.Contains(lower, "web-dl"), strings.Contains(lower, "webdl"), strings.Contains(lower, "webrip"), strings.Contains(lower, "web "):
		return "web"
	case strings.Contains(lower, "hdtv"):
		return "hdtv"
	case strings.Contains(lower, "dvdrip"), strings.Contains(lower, "dvd"):
		return "dvd"
	case strings.Contains(lower, "camrip"), strings.Contains(lower, "hdcam"), strings.Contains(lower, " cam"), strings.Contains(lower, "telesync"), strings.Contains(lower, " ts "):
		return "cam"
	case strings.Contains(lower, "screener"), strings.Contains(lower, "dvdscr"), strings.Contains(lower, " scr"):
		return "screener"
	default:
		return ""
	}
}

// DetectCodec picks out the video codec tag when present.
func DetectCodec(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "av1"):
		return "av1"
	case strings.Contains(lower, "x265"), strings.Contains(lower, "h265"), strings.Contains(lower, "h.265"), strings.Contains(lower, "hevc"):
		return "hevc"
	case strings.Contains(lower, "x264"), strings.Contains(lower, "h264"), strings.Contains(lower, "h.264"), strings.Contains(lower, "avc"):
		return "h264"
	case strings.Contains(lower, "xvid"):
		return "xvid"
	default:
		return ""
	}
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".m4v":  {},
	".mkv":  {},
	".webm": {},
	".mov":  {},
	".avi":  {},
	".mpg":  {},
	".mpeg": {},
	".ts":   {},
	".m2ts": {},
	".mts":  {},
	".wmv":  {},
	".flv":  {},
	".vob":  {},
	".ogv":  {},
	".3gp":  {},
	".divx": {},
}

func isVideoExt(ext string) bool {
	_, ok := videoExtensions[ext]
	return ok
}

// IsVideoFile reports whether the path carries a recognized video
// container extension.
func IsVideoFile(p string) bool {
	return isVideoExt(strings.ToLower(path.Ext(p)))
}
