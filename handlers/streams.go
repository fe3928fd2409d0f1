// Package handlers contains the HTTP handlers: candidate listing, click-time
// resolution, and health.
package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"resolvarr/internal/linksign"
	"resolvarr/models"
	"resolvarr/services/selector"
	"resolvarr/services/sources"
)

// StreamsHandler serves the aggregated, selected candidate list.
type StreamsHandler struct {
	aggregator *sources.Aggregator
	selector   *selector.Selector
	signer     *linksign.Signer
}

// NewStreamsHandler builds the streams handler.
func NewStreamsHandler(aggregator *sources.Aggregator, sel *selector.Selector, signer *linksign.Signer) *StreamsHandler {
	return &StreamsHandler{aggregator: aggregator, selector: sel, signer: signer}
}

// parseContentID splits a stremio-style id ("tt0903747" or
// "tt0903747:1:2") into its parts.
func parseContentID(raw string) (contentID string, season, episode int) {
	parts := strings.Split(raw, ":")
	contentID = parts[0]
	if len(parts) >= 3 {
		season, _ = strconv.Atoi(parts[1])
		episode, _ = strconv.Atoi(parts[2])
	}
	return contentID, season, episode
}

// ServeStreams handles GET /api/streams/{mediaType}/{contentID}.
//
// Query parameters: query (display title for text-search sources),
// provider + apikey (passed through into resolve links), fallback and
// secondOpinion (expose the secondary candidates).
func (h *StreamsHandler) ServeStreams(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaType := models.MediaType(vars["mediaType"])
	if mediaType != models.MediaTypeMovie && mediaType != models.MediaTypeSeries {
		http.Error(w, "invalid media type", http.StatusBadRequest)
		return
	}

	contentID, season, episode := parseContentID(strings.TrimSuffix(vars["contentID"], ".json"))
	if contentID == "" {
		http.Error(w, "missing content id", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	req := sources.QueryRequest{
		MediaType: mediaType,
		ContentID: contentID,
		Query:     q.Get("query"),
		Season:    season,
		Episode:   episode,
	}

	candidates := h.aggregator.Fetch(r.Context(), req)
	result := h.selector.Select(candidates, selector.Request{
		MediaType: mediaType,
		Season:    season,
		Episode:   episode,
	})

	response := h.buildResponse(result, req, q)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[streams] encode response: %v", err)
	}

	// Warm the next episode's source caches off the request path. Its
	// failure must never surface in any user-facing response.
	if mediaType == models.MediaTypeSeries && episode > 0 {
		go h.preloadNextEpisode(req)
	}
}

// buildResponse renders the primary and any flag-enabled secondaries. The
// secondaries were computed regardless, so flipping a flag needs no new
// fetch. An empty selection yields a visible placeholder row instead of a
// bare empty list, which some players retry-loop on.
func (h *StreamsHandler) buildResponse(result selector.Result, req sources.QueryRequest, q url.Values) models.StreamListResponse {
	if result.Primary == nil {
		return models.StreamListResponse{Streams: []models.StreamEntry{{
			Name:        "resolvarr",
			Title:       "No playable streams found",
			Placeholder: true,
		}}}
	}

	provider := q.Get("provider")
	apiKey := q.Get("apikey")

	entries := []models.StreamEntry{h.buildEntry(result.Primary, req, provider, apiKey, "")}
	if q.Get("fallback") == "true" && result.FallbackQuality != nil {
		entries = append(entries, h.buildEntry(result.FallbackQuality, req, provider, apiKey, "fallback"))
	}
	if q.Get("secondOpinion") == "true" && result.SecondOpinion != nil {
		entries = append(entries, h.buildEntry(result.SecondOpinion, req, provider, apiKey, "second opinion"))
	}
	return models.StreamListResponse{Streams: entries}
}

func (h *StreamsHandler) buildEntry(c *models.StreamCandidate, req sources.QueryRequest, provider, apiKey, label string) models.StreamEntry {
	name := c.Source
	if c.Resolution != "" {
		name = fmt.Sprintf("%s %s", c.Source, c.Resolution)
	}
	if label != "" {
		name = fmt.Sprintf("%s (%s)", name, label)
	}

	entry := models.StreamEntry{
		Name:       name,
		Title:      c.Title,
		InfoHash:   c.InfoHash,
		FileIndex:  c.FileIndex,
		Resolution: c.Resolution,
		SizeBytes:  c.SizeBytes,
		Source:     c.Source,
	}
	if c.Resolved {
		entry.URL = c.URL
		return entry
	}
	entry.URL = h.resolveURL(c, req, provider, apiKey)
	return entry
}

// resolveURL builds the signed click-time link for a candidate. The
// signature covers reference, file index, content id and filename; the
// credential rides along unsigned so keys can rotate without
// invalidating issued links.
func (h *StreamsHandler) resolveURL(c *models.StreamCandidate, req sources.QueryRequest, provider, apiKey string) string {
	reference := strings.ToLower(c.InfoHash)
	if reference == "" {
		reference = c.URL
	}
	sig := h.signer.Sign(reference, c.FileIndex, req.ContentID, c.Filename)

	params := url.Values{}
	if c.InfoHash != "" {
		params.Set("hash", strings.ToLower(c.InfoHash))
	} else {
		params.Set("magnet", c.URL)
	}
	params.Set("file", strconv.Itoa(c.FileIndex))
	params.Set("content", req.ContentID)
	if c.Filename != "" {
		params.Set("filename", c.Filename)
	}
	if req.Season > 0 && req.Episode > 0 {
		params.Set("season", strconv.Itoa(req.Season))
		params.Set("episode", strconv.Itoa(req.Episode))
	}
	if provider != "" {
		params.Set("provider", provider)
	}
	if apiKey != "" {
		params.Set("apikey", apiKey)
	}
	params.Set("sig", sig)
	return "/api/resolve?" + params.Encode()
}

// preloadNextEpisode fetches candidates for the following episode so its
// sources are warm when the user hits next. Detached from the request;
// panics are recovered and logged, never surfaced.
func (h *StreamsHandler) preloadNextEpisode(req sources.QueryRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[streams] next-episode preload panic: %v", rec)
		}
	}()

	next := req
	next.Episode++

	ctx, cancel := preloadContext()
	defer cancel()

	candidates := h.aggregator.Fetch(ctx, next)
	log.Printf("[streams] preloaded %d candidates for %s S%02dE%02d",
		len(candidates), next.ContentID, next.Season, next.Episode)
}
