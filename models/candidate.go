package models

// MediaType distinguishes movie and series requests.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// StreamCandidate is one offer of playable content from an upstream source.
// It is created per-request by the aggregator, enriched by the selector and
// possibly mutated by the resolver; it is never persisted.
type StreamCandidate struct {
	// Source is the name of the backend that produced this candidate.
	Source string `json:"source"`

	// InfoHash is the lowercase torrent info hash when known.
	InfoHash string `json:"infoHash,omitempty"`
	// URL is a magnet URI before resolution, or a direct HTTPS link once
	// Resolved is set.
	URL string `json:"url,omitempty"`
	// FileIndex is the in-torrent file index, -1 when unknown.
	FileIndex int `json:"fileIndex"`

	Title       string `json:"title"`
	Filename    string `json:"filename,omitempty"`
	Description string `json:"description,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`

	// Derived from the release text.
	Resolution string `json:"resolution,omitempty"`
	Codec      string `json:"codec,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`

	Languages []string `json:"languages,omitempty"`
	Seeders   int      `json:"seeders,omitempty"`

	// ReliabilityPenalty is an externally looked-up penalty for the hosting
	// provider; higher means less reliable.
	ReliabilityPenalty float64 `json:"-"`

	// Resolved marks candidates whose URL is already a direct link (some
	// sources pre-resolve through their own premium integration).
	Resolved bool `json:"resolved,omitempty"`

	Score float64 `json:"-"`
}

// Playable reports whether the candidate carries at least one usable
// torrent reference.
func (c *StreamCandidate) Playable() bool {
	return c.InfoHash != "" || c.URL != ""
}

// StreamEntry is one row of the candidate list response.
type StreamEntry struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	InfoHash   string `json:"infoHash,omitempty"`
	FileIndex  int    `json:"fileIndex,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
	Source     string `json:"source,omitempty"`
	// Placeholder entries are rendered when no candidate qualified, so
	// clients show a visible row instead of retry-looping on empty results.
	Placeholder bool `json:"placeholder,omitempty"`
}

// StreamListResponse is the ordered candidate list returned to the player.
type StreamListResponse struct {
	Streams []StreamEntry `json:"streams"`
}
