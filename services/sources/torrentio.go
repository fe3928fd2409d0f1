package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"resolvarr/internal/release"
	"resolvarr/models"
)

const torrentioDefaultBaseURL = "https://torrentio.strem.fun"

// TorrentioSource queries a stremio-style torrent addon for streams by
// content id.
type TorrentioSource struct {
	name       string // User-configured name for display
	baseURL    string
	options    string // URL path options (e.g. "sort=qualitysize|qualityfilter=480p,scr,cam")
	httpClient *http.Client
}

// NewTorrentioSource constructs a source with sane defaults. The options
// parameter is inserted between the base URL and the /stream path.
func NewTorrentioSource(client *http.Client, options, name string) *TorrentioSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TorrentioSource{
		name:       strings.TrimSpace(name),
		baseURL:    torrentioDefaultBaseURL,
		options:    strings.TrimSpace(options),
		httpClient: client,
	}
}

var _ Source = (*TorrentioSource)(nil)

func (t *TorrentioSource) Name() string {
	if t.name != "" {
		return t.name
	}
	return "torrentio"
}

// SetBaseURL points the source at a self-hosted addon instance.
func (t *TorrentioSource) SetBaseURL(base string) {
	if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
		t.baseURL = trimmed
	}
}

type torrentioResponse struct {
	Streams []struct {
		Name          string      `json:"name"`
		Title         string      `json:"title"`
		InfoHash      string      `json:"infoHash"`
		FileIdx       *int        `json:"fileIdx"`
		URL           string      `json:"url"`
		Seeders       interface{} `json:"seeders"`
		Size          interface{} `json:"size"`
		BehaviorHints struct {
			Filename     string   `json:"filename"`
			VideoSize    int64    `json:"videoSize"`
			OpenTrackers []string `json:"openTrackers"`
		} `json:"behaviorHints"`
	} `json:"streams"`
}

func (t *TorrentioSource) Query(ctx context.Context, req QueryRequest) ([]models.StreamCandidate, error) {
	id := req.StreamID()
	if strings.TrimSpace(req.ContentID) == "" {
		return nil, nil
	}

	var endpoint string
	if t.options != "" {
		endpoint = fmt.Sprintf("%s/%s/stream/%s/%s.json", t.baseURL, t.options, req.MediaType, url.PathEscape(id))
	} else {
		endpoint = fmt.Sprintf("%s/stream/%s/%s.json", t.baseURL, req.MediaType, url.PathEscape(id))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	addBrowserHeaders(httpReq)
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("torrentio %s returned %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload torrentioResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode torrentio response: %w", err)
	}

	candidates := make([]models.StreamCandidate, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		infoHash := strings.ToLower(strings.TrimSpace(stream.InfoHash))
		directURL := strings.TrimSpace(stream.URL)
		if infoHash == "" && directURL == "" {
			continue
		}

		name := strings.TrimSpace(stream.Name)
		rawTitle := strings.TrimSpace(stream.Title)
		releaseText := name + " " + rawTitle

		fileIdx := -1
		if stream.FileIdx != nil {
			fileIdx = *stream.FileIdx
		}

		sizeBytes := parseSize(rawTitle)
		if sizeBytes == 0 {
			sizeBytes = parseSizeFromInterface(stream.Size)
		}
		if sizeBytes == 0 && stream.BehaviorHints.VideoSize > 0 {
			sizeBytes = stream.BehaviorHints.VideoSize
		}

		candidate := models.StreamCandidate{
			Source:      t.Name(),
			InfoHash:    infoHash,
			FileIndex:   fileIdx,
			Title:       deriveTitle(rawTitle),
			Filename:    strings.TrimSpace(stream.BehaviorHints.Filename),
			Description: rawTitle,
			SizeBytes:   sizeBytes,
			Seeders:     parseInt(stream.Seeders, rawTitle),
			Languages:   parseLanguages(rawTitle),
			Resolution:  release.DetectResolution(releaseText),
			Codec:       release.DetectCodec(releaseText),
			Quality:     release.DetectQuality(releaseText),
		}
		if code, ok := release.ParseEpisode(releaseText); ok {
			candidate.Season = code.Season
			candidate.Episode = code.Episode
		}
		if directURL != "" && !strings.HasPrefix(directURL, "magnet:") {
			// Some addon configurations pre-resolve through their own
			// premium integration; the link is playable as-is.
			candidate.URL = directURL
			candidate.Resolved = true
		} else if infoHash != "" {
			candidate.URL = BuildMagnet(infoHash, stream.BehaviorHints.OpenTrackers)
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

var (
	reSize    = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGTP]?B)`)
	reSeeders = regexp.MustCompile(`👤\s*(\d+)`)
	reFlags   = regexp.MustCompile(`[\p{So}]{1,2}`)
)

// deriveTitle keeps the release name line of a multi-line stream title.
func deriveTitle(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(lines[0])
}

func parseSize(raw string) int64 {
	match := reSize.FindStringSubmatch(raw)
	if len(match) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	multipliers := map[string]float64{
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
		"PB": 1 << 50,
	}
	if mult, exists := multipliers[strings.ToUpper(match[2])]; exists {
		return int64(value * mult)
	}
	return 0
}

func parseSizeFromInterface(src interface{}) int64 {
	switch v := src.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		return parseSize(v)
	default:
		return 0
	}
}

func parseInt(src interface{}, fallback string) int {
	switch v := src.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if val, err := v.Int64(); err == nil {
			return int(val)
		}
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			if val, err := strconv.Atoi(trimmed); err == nil {
				return val
			}
		}
	}
	if fallback != "" {
		if match := reSeeders.FindStringSubmatch(fallback); len(match) == 2 {
			if val, err := strconv.Atoi(match[1]); err == nil {
				return val
			}
		}
	}
	return 0
}

// parseLanguages collects the flag symbols torrentio appends to titles.
func parseLanguages(raw string) []string {
	matches := reFlags.FindAllString(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	norm := make([]string, 0, len(matches))
	for _, symbol := range matches {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		switch symbol {
		case "👤", "💾", "⚙️":
			continue
		}
		norm = append(norm, symbol)
	}
	return norm
}

// BuildMagnet renders a magnet URI for the hash with optional trackers.
func BuildMagnet(infoHash string, trackers []string) string {
	if infoHash == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(strings.ToUpper(infoHash))
	for _, tracker := range trackers {
		if trimmed := strings.TrimSpace(tracker); trimmed != "" {
			builder.WriteString("&tr=")
			builder.WriteString(url.QueryEscape(trimmed))
		}
	}
	return builder.String()
}
