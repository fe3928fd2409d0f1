package debrid

import (
	"fmt"
	"strings"

	"resolvarr/internal/release"
)

// minFileSizeBytes filters out samples, subtitles and junk files.
const minFileSizeBytes = 50 << 20

// FileTarget describes which in-torrent file the caller wants.
type FileTarget struct {
	// Filename is the declared target filename, when the source knew it.
	Filename string
	// FileIndex is the declared in-torrent index, -1 when unknown.
	FileIndex int
	// Season/Episode narrow season packs to one episode.
	Season  int
	Episode int
}

// ChooseFile picks the file to unlock from a ready torrent. Preference
// order: normalized filename match, then episode pattern match (season
// packs), then the supplied numeric index, then the largest qualifying
// file. The returned reason describes the decision for logging. A nil
// file means nothing qualified yet — the torrent is still caching, not
// failed.
func ChooseFile(files []File, target FileTarget) (*File, string) {
	qualifying := make([]int, 0, len(files))
	for i, f := range files {
		if f.Bytes >= minFileSizeBytes && release.IsVideoFile(f.Path) {
			qualifying = append(qualifying, i)
		}
	}
	if len(qualifying) == 0 {
		return nil, ""
	}

	// (a) filename match: exact normalized equality first, substring as
	// fallback. Normalization strips separators and bracketed tags so
	// declared names and in-torrent paths compare equal.
	if want := release.Normalize(target.Filename); want != "" {
		var substring *File
		for _, i := range qualifying {
			got := release.Normalize(files[i].Path)
			if got == want {
				return &files[i], "exact filename match"
			}
			if substring == nil && (strings.Contains(got, want) || strings.Contains(want, got)) {
				substring = &files[i]
			}
		}
		if substring != nil {
			return substring, "partial filename match"
		}
	}

	// (b) episode pattern match for season packs.
	if target.Season > 0 && target.Episode > 0 {
		want := release.EpisodeCode{Season: target.Season, Episode: target.Episode}
		for _, i := range qualifying {
			if code, ok := release.ParseEpisode(files[i].Path); ok && code == want {
				return &files[i], fmt.Sprintf("episode match S%02dE%02d", want.Season, want.Episode)
			}
		}
	}

	// (c) the declared numeric index, when it points at a qualifying file.
	if target.FileIndex >= 0 {
		for _, i := range qualifying {
			if files[i].ID == target.FileIndex {
				return &files[i], fmt.Sprintf("declared file index %d", target.FileIndex)
			}
		}
	}

	// (d) largest qualifying file.
	best := qualifying[0]
	for _, i := range qualifying[1:] {
		if files[i].Bytes > files[best].Bytes {
			best = i
		}
	}
	return &files[best], "largest qualifying file"
}
