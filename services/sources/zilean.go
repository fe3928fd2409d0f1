package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resolvarr/internal/release"
	"resolvarr/models"
)

const zileanTimeout = 10 * time.Second

// ZileanSource queries a Zilean DMM filtered API instance for releases.
// Zilean searches by text, so requests without a display title are skipped.
type ZileanSource struct {
	name       string // User-configured name for display
	baseURL    string
	httpClient *http.Client
}

// NewZileanSource constructs a Zilean source for the given base URL.
func NewZileanSource(baseURL, name string, client *http.Client) *ZileanSource {
	if client == nil {
		client = &http.Client{Timeout: zileanTimeout}
	}
	return &ZileanSource{
		name:       strings.TrimSpace(name),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

var _ Source = (*ZileanSource)(nil)

func (z *ZileanSource) Name() string {
	if z.name != "" {
		return z.name
	}
	return "zilean"
}

// flexibleInt64 unmarshals both JSON numbers and numeric strings; Zilean
// has shipped size as either across versions.
type flexibleInt64 int64

func (fi *flexibleInt64) UnmarshalJSON(data []byte) error {
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = flexibleInt64(i)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64); err == nil {
			*fi = flexibleInt64(parsed)
			return nil
		}
	}
	*fi = 0
	return nil
}

type zileanItem struct {
	RawTitle   string        `json:"raw_title"`
	Size       flexibleInt64 `json:"size"`
	InfoHash   string        `json:"info_hash"`
	Resolution string        `json:"resolution"`
	Quality    string        `json:"quality"`
	Codec      *string       `json:"codec"`
	Languages  []string      `json:"languages"`
	Year       int           `json:"year"`
	Season     int           `json:"season"`
	Episode    int           `json:"episode"`
	IMDBID     string        `json:"imdb_id"`
}

func (z *ZileanSource) Query(ctx context.Context, req QueryRequest) ([]models.StreamCandidate, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		// No text to search on; other sources cover id-only requests.
		log.Printf("[zilean] skipping request for %s: no query text", req.ContentID)
		return nil, nil
	}

	params := url.Values{}
	params.Set("Query", query)
	if req.MediaType == models.MediaTypeSeries && req.Season > 0 {
		params.Set("Season", strconv.Itoa(req.Season))
		if req.Episode > 0 {
			params.Set("Episode", strconv.Itoa(req.Episode))
		}
	}

	endpoint := fmt.Sprintf("%s/dmm/filtered?%s", z.baseURL, params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := z.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zilean request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("zilean returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return z.parseResponse(body)
}

func (z *ZileanSource) parseResponse(body []byte) ([]models.StreamCandidate, error) {
	var items []zileanItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	candidates := make([]models.StreamCandidate, 0, len(items))
	for _, item := range items {
		infoHash := strings.ToLower(strings.TrimSpace(item.InfoHash))
		if infoHash == "" {
			continue
		}

		resolution := normalizeResolution(item.Resolution)
		if resolution == "" {
			resolution = release.DetectResolution(item.RawTitle)
		}
		codec := ""
		if item.Codec != nil {
			codec = strings.ToLower(strings.TrimSpace(*item.Codec))
		}
		if codec == "" {
			codec = release.DetectCodec(item.RawTitle)
		}
		quality := strings.ToLower(strings.TrimSpace(item.Quality))
		if quality == "" {
			quality = release.DetectQuality(item.RawTitle)
		}

		candidate := models.StreamCandidate{
			Source:     z.Name(),
			InfoHash:   infoHash,
			URL:        BuildMagnet(infoHash, nil),
			FileIndex:  -1, // Zilean knows hashes, not in-torrent files
			Title:      item.RawTitle,
			SizeBytes:  int64(item.Size),
			Resolution: resolution,
			Codec:      codec,
			Quality:    quality,
			Season:     item.Season,
			Episode:    item.Episode,
			Languages:  item.Languages,
		}
		if candidate.Season == 0 || candidate.Episode == 0 {
			if code, ok := release.ParseEpisode(item.RawTitle); ok {
				candidate.Season = code.Season
				candidate.Episode = code.Episode
			}
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// normalizeResolution folds Zilean's resolution labels onto the fixed
// ladder used everywhere else.
func normalizeResolution(res string) string {
	res = strings.ToLower(strings.TrimSpace(res))
	if res == "" {
		return ""
	}
	switch {
	case strings.Contains(res, "2160"), strings.Contains(res, "4k"), strings.Contains(res, "uhd"):
		return "2160p"
	case strings.Contains(res, "1080"):
		return "1080p"
	case strings.Contains(res, "720"):
		return "720p"
	case strings.Contains(res, "480"), strings.Contains(res, "576"), strings.Contains(res, "sd"):
		return "480p"
	default:
		return ""
	}
}

// TestConnection checks that the Zilean instance answers a trivial query.
func (z *ZileanSource) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("Query", "test")
	endpoint := fmt.Sprintf("%s/dmm/filtered?%s", z.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zilean returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
