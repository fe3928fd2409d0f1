package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"resolvarr/internal/admission"
	"resolvarr/internal/linksign"
	"resolvarr/internal/ttlcache"
	"resolvarr/services/debrid"
)

// fakeProvider answers every workflow step successfully with one ready
// video file.
type fakeProvider struct {
	addCalls int
}

var _ debrid.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AddMagnet(ctx context.Context, magnetURL string) (*debrid.AddMagnetResult, error) {
	p.addCalls++
	return &debrid.AddMagnetResult{ID: "t1", URI: magnetURL}, nil
}

func (p *fakeProvider) GetTorrentInfo(ctx context.Context, torrentID string) (*debrid.TorrentInfo, error) {
	return &debrid.TorrentInfo{
		ID:     torrentID,
		Status: debrid.StatusDownloaded,
		Files:  []debrid.File{{ID: 0, Path: "movie.mkv", Bytes: 3 << 30, Link: "restricted"}},
	}, nil
}

func (p *fakeProvider) SelectFiles(ctx context.Context, torrentID string, fileIDs []int) error {
	return nil
}

func (p *fakeProvider) UnrestrictLink(ctx context.Context, link string) (*debrid.UnrestrictResult, error) {
	return &debrid.UnrestrictResult{Filename: "movie.mkv", DownloadURL: "https://cdn.example/movie.mkv"}, nil
}

func (p *fakeProvider) DeleteTorrent(ctx context.Context, torrentID string) error { return nil }

func newResolveFixture(limit int) (*ResolveHandler, *linksign.Signer, *fakeProvider) {
	signer := linksign.New("test-secret")
	cache := ttlcache.New[string, debrid.CachedLink](16, 40*time.Minute)
	limiter := admission.NewLimiter(limit, time.Minute)
	breaker := admission.NewBreaker(3, time.Minute)

	resolver := debrid.NewResolver(signer, cache, limiter, breaker, debrid.Options{})
	provider := &fakeProvider{}
	resolver.SetProviderFactory(func(name, apiKey string) (debrid.Provider, error) {
		return provider, nil
	})
	resolver.SetPollerTuning(func(p *debrid.Poller) {
		p.SetBackoff(func(debrid.PollState, int) time.Duration { return 0 })
		p.SetSleep(func(context.Context, time.Duration) error { return nil })
	})

	return NewResolveHandler(resolver, "", ""), signer, provider
}

func resolveParams(signer *linksign.Signer, hash, apikey string) url.Values {
	params := url.Values{}
	params.Set("hash", hash)
	params.Set("file", "-1")
	params.Set("content", "tt100")
	params.Set("filename", "movie.mkv")
	if apikey != "" {
		params.Set("apikey", apikey)
		params.Set("provider", "fake")
	}
	params.Set("sig", signer.Sign(hash, -1, "tt100", "movie.mkv"))
	return params
}

func doResolve(h *ResolveHandler, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/resolve?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeResolve(rec, req)
	return rec
}

func TestServeResolveRejectsInvalidSignature(t *testing.T) {
	h, signer, provider := newResolveFixture(100)

	params := resolveParams(signer, "abc123", "key")
	params.Set("content", "tt999") // breaks the signature

	rec := doResolve(h, params)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if provider.addCalls != 0 {
		t.Fatalf("rejected request must not reach the provider")
	}
}

func TestServeResolveMagnetFallback(t *testing.T) {
	h, signer, provider := newResolveFixture(100)

	rec := doResolve(h, resolveParams(signer, "abc123", ""))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); !strings.HasPrefix(got, "magnet:?xt=urn:btih:") {
		t.Fatalf("expected a magnet redirect, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("magnet fallback must not be cached, Cache-Control = %q", got)
	}
	if provider.addCalls != 0 {
		t.Fatalf("magnet fallback must not reach the provider")
	}
}

func TestServeResolveSuccessRedirect(t *testing.T) {
	h, signer, _ := newResolveFixture(100)

	rec := doResolve(h, resolveParams(signer, "abc123", "key"))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "https://cdn.example/movie.mkv" {
		t.Fatalf("Location = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=2400" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q", got)
	}
}

func TestServeResolveRateLimited(t *testing.T) {
	h, signer, _ := newResolveFixture(1)

	if rec := doResolve(h, resolveParams(signer, "abc123", "key")); rec.Code != http.StatusFound {
		t.Fatalf("first request: status = %d, want 302", rec.Code)
	}
	rec := doResolve(h, resolveParams(signer, "def456", "key"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("429 should carry Retry-After")
	}
}

func TestServeResolveRetryLaterAnswers202(t *testing.T) {
	signer := linksign.New("test-secret")
	cache := ttlcache.New[string, debrid.CachedLink](16, time.Minute)
	resolver := debrid.NewResolver(signer, cache,
		admission.NewLimiter(100, time.Minute), admission.NewBreaker(3, time.Minute), debrid.Options{})
	resolver.SetProviderFactory(func(name, apiKey string) (debrid.Provider, error) {
		return &notReadyProvider{}, nil
	})
	resolver.SetPollerTuning(func(p *debrid.Poller) {
		p.SetBackoff(func(debrid.PollState, int) time.Duration { return 0 })
		p.SetSleep(func(context.Context, time.Duration) error { return nil })
	})
	h := NewResolveHandler(resolver, "", "")

	rec := doResolve(h, resolveParams(signer, "abc123", "key"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %q", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode 202 body: %v", err)
	}
	if body.Status != "retry" || body.Reason == "" {
		t.Fatalf("unexpected retry body %+v", body)
	}
}

func TestServeResolveDefaultCredential(t *testing.T) {
	h, signer, provider := newResolveFixture(100)
	h.defaultProvider = "fake"
	h.defaultAPIKey = "server-key"

	rec := doResolve(h, resolveParams(signer, "abc123", ""))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	// With a server-side default key there is no magnet fallback: the
	// workflow ran.
	if provider.addCalls != 1 {
		t.Fatalf("expected the workflow to run with the default credential, got %d uploads", provider.addCalls)
	}
	if got := rec.Header().Get("Location"); got != "https://cdn.example/movie.mkv" {
		t.Fatalf("Location = %q", got)
	}
}

// notReadyProvider never finishes downloading.
type notReadyProvider struct{}

var _ debrid.Provider = (*notReadyProvider)(nil)

func (p *notReadyProvider) Name() string { return "notready" }

func (p *notReadyProvider) AddMagnet(ctx context.Context, magnetURL string) (*debrid.AddMagnetResult, error) {
	return &debrid.AddMagnetResult{ID: "t1", URI: magnetURL}, nil
}

func (p *notReadyProvider) GetTorrentInfo(ctx context.Context, torrentID string) (*debrid.TorrentInfo, error) {
	return &debrid.TorrentInfo{ID: torrentID, Status: debrid.StatusDownloading, Progress: 1 << 20}, nil
}

func (p *notReadyProvider) SelectFiles(ctx context.Context, torrentID string, fileIDs []int) error {
	return nil
}

func (p *notReadyProvider) UnrestrictLink(ctx context.Context, link string) (*debrid.UnrestrictResult, error) {
	return nil, nil
}

func (p *notReadyProvider) DeleteTorrent(ctx context.Context, torrentID string) error { return nil }
