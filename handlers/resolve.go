package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"resolvarr/services/debrid"
)

// preloadTimeout bounds detached background fetches.
const preloadTimeout = 30 * time.Second

func preloadContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), preloadTimeout)
}

// ResolveHandler runs the click-time resolution and answers with a
// redirect.
type ResolveHandler struct {
	resolver *debrid.Resolver

	// Server-side defaults used when the link carries no credential of
	// its own: the first enabled provider from configuration.
	defaultProvider string
	defaultAPIKey   string
}

// NewResolveHandler builds the resolve handler.
func NewResolveHandler(resolver *debrid.Resolver, defaultProvider, defaultAPIKey string) *ResolveHandler {
	return &ResolveHandler{
		resolver:        resolver,
		defaultProvider: defaultProvider,
		defaultAPIKey:   defaultAPIKey,
	}
}

type retryResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ServeResolve handles GET /api/resolve.
//
// Query parameters: hash or magnet, file, content, filename, season,
// episode, provider, apikey, sig. Successful resolutions answer 302 with
// cache and byte-range headers; transient not-ready outcomes answer 202
// with a JSON reason so clients can retry after a pause.
func (h *ResolveHandler) ServeResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fileIndex := -1
	if raw := q.Get("file"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			fileIndex = parsed
		}
	}
	season, _ := strconv.Atoi(q.Get("season"))
	episode, _ := strconv.Atoi(q.Get("episode"))

	provider := q.Get("provider")
	credential := q.Get("apikey")
	if credential == "" && h.defaultAPIKey != "" {
		provider = h.defaultProvider
		credential = h.defaultAPIKey
	}

	req := debrid.ResolveRequest{
		InfoHash:   q.Get("hash"),
		Magnet:     q.Get("magnet"),
		FileIndex:  fileIndex,
		ContentID:  q.Get("content"),
		Filename:   q.Get("filename"),
		Season:     season,
		Episode:    episode,
		Provider:   provider,
		Credential: credential,
		Signature:  q.Get("sig"),
	}

	outcome, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	if outcome.MagnetFallback {
		// No credential: hand the player the magnet itself. Not cacheable,
		// the caller may add a key later.
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, outcome.URL, http.StatusFound)
		return
	}

	maxAge := int(outcome.TTL.Seconds())
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("Accept-Ranges", "bytes")
	http.Redirect(w, r, outcome.URL, http.StatusFound)
}

// writeError maps resolver errors onto HTTP statuses: integrity failures
// 403, admission 429/503, transient not-ready 202 with a reason, terminal
// provider failures 502.
func (h *ResolveHandler) writeError(w http.ResponseWriter, req debrid.ResolveRequest, err error) {
	switch {
	case errors.Is(err, debrid.ErrBadSignature):
		http.Error(w, "invalid signature", http.StatusForbidden)
	case errors.Is(err, debrid.ErrMissingCredential):
		http.Error(w, "missing credential", http.StatusBadRequest)
	case errors.Is(err, debrid.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, debrid.ErrCircuitOpen):
		w.Header().Set("Retry-After", "90")
		http.Error(w, "provider temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "resolution timed out", http.StatusGatewayTimeout)
	default:
		if reason, retry := debrid.IsRetryLater(err); retry {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(retryResponse{Status: "retry", Reason: reason})
			return
		}
		log.Printf("[resolve] %s file=%d failed: %v", req.Reference(), req.FileIndex, err)
		http.Error(w, "resolution failed: "+err.Error(), http.StatusBadGateway)
	}
}
