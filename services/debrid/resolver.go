package debrid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"resolvarr/internal/admission"
	"resolvarr/internal/linksign"
	"resolvarr/internal/ttlcache"
)

// Admission and integrity failures, short-circuited before any provider
// call.
var (
	ErrBadSignature      = errors.New("invalid link signature")
	ErrMissingCredential = errors.New("no credential and no info hash to fall back to")
	ErrRateLimited       = errors.New("rate limit exceeded for credential")
	ErrCircuitOpen       = errors.New("provider temporarily unavailable for credential")
)

// IsRetryLater reports whether err is a transient not-ready outcome the
// caller should retry after a pause.
func IsRetryLater(err error) (string, bool) {
	var rl *RetryLaterError
	if errors.As(err, &rl) {
		return rl.Reason, true
	}
	return "", false
}

// CachedLink is a committed resolution: the direct URL for one (torrent,
// file) key. ExpiresAt mirrors the cache entry's deadline so redirect
// cache headers shrink with the entry's remaining life.
type CachedLink struct {
	URL       string
	Filename  string
	ExpiresAt time.Time
}

// ResolveRequest carries the decoded click-time link fields.
type ResolveRequest struct {
	InfoHash  string
	Magnet    string
	FileIndex int
	ContentID string
	Filename  string
	Season    int
	Episode   int
	Provider  string
	// Credential is the caller's API key for the premium service. It is
	// deliberately outside the signed fields.
	Credential string
	Signature  string
}

// Reference is the signed torrent reference: the info hash when known,
// the magnet URI otherwise.
func (r *ResolveRequest) Reference() string {
	if r.InfoHash != "" {
		return strings.ToLower(r.InfoHash)
	}
	return r.Magnet
}

func (r *ResolveRequest) magnetURI() string {
	if r.Magnet != "" {
		return r.Magnet
	}
	if r.InfoHash != "" {
		return "magnet:?xt=urn:btih:" + strings.ToUpper(r.InfoHash)
	}
	return ""
}

// Outcome is a successful resolution.
type Outcome struct {
	URL      string
	Filename string
	// TTL is how long the redirect may be cached; zero for a magnet
	// fallback, which has no expiry.
	TTL time.Duration
	// MagnetFallback marks a credential-less redirect to the bare magnet.
	MagnetFallback bool
	FromCache      bool
}

// Options configures a Resolver. Cache lifetime and capacity live on the
// injected cache itself.
type Options struct {
	WorkflowTimeout time.Duration
	PollBudget      int
}

// Resolver drives the click-time state machine: verify, admit, check the
// cache, and run at most one upload/poll/unlock workflow per (torrent,
// file) key system-wide. All shared state is injected so tests run
// isolated instances; production wires one resolver per process.
type Resolver struct {
	signer  *linksign.Signer
	cache   *ttlcache.Cache[string, CachedLink]
	limiter *admission.Limiter
	breaker *admission.Breaker
	group   singleflight.Group

	workflowTimeout time.Duration
	pollBudget      int

	// Hooks replaced by tests.
	newProvider func(name, apiKey string) (Provider, error)
	tunePoller  func(*Poller)
}

// NewResolver wires a resolver from its injected parts.
func NewResolver(signer *linksign.Signer, cache *ttlcache.Cache[string, CachedLink], limiter *admission.Limiter, breaker *admission.Breaker, opts Options) *Resolver {
	if opts.WorkflowTimeout <= 0 {
		opts.WorkflowTimeout = 90 * time.Second
	}
	if opts.PollBudget <= 0 {
		opts.PollBudget = 24
	}
	return &Resolver{
		signer:          signer,
		cache:           cache,
		limiter:         limiter,
		breaker:         breaker,
		workflowTimeout: opts.WorkflowTimeout,
		pollBudget:      opts.PollBudget,
		newProvider:     NewProvider,
	}
}

// SetProviderFactory replaces provider construction; tests inject fakes.
func (r *Resolver) SetProviderFactory(factory func(name, apiKey string) (Provider, error)) {
	r.newProvider = factory
}

// SetPollerTuning installs a hook applied to every poller the resolver
// builds; tests zero the backoff.
func (r *Resolver) SetPollerTuning(tune func(*Poller)) {
	r.tunePoller = tune
}

// CacheTTL exposes the configured cache lifetime for redirect headers.
func (r *Resolver) CacheTTL() time.Duration {
	return r.cache.TTL()
}

// cacheKey identifies one resolution: torrent reference plus the target
// file.
func cacheKey(reference string, fileIndex int, filename string) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(reference), fileIndex, strings.ToLower(filename))
}

// Resolve runs the click-time state machine for one request.
//
// Short-circuit order: signature, magnet fallback, limiter, breaker,
// cache, single-flight dedup, then the upload/poll/unlock workflow. The
// workflow runs under its own timeout detached from the caller's context
// so one waiter disconnecting does not cancel the shared work; the
// pending entry is removed when the workflow finishes regardless of
// outcome.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Outcome, error) {
	reference := req.Reference()
	if reference == "" {
		return nil, errors.New("missing torrent reference")
	}

	if !r.signer.Verify(reference, req.FileIndex, req.ContentID, req.Filename, req.Signature) {
		return nil, ErrBadSignature
	}

	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		// Graceful non-premium fallback: hand back the magnet itself.
		if req.InfoHash != "" {
			return &Outcome{URL: req.magnetURI(), MagnetFallback: true}, nil
		}
		return nil, ErrMissingCredential
	}

	if !r.limiter.Allow(credential) {
		return nil, ErrRateLimited
	}
	if !r.breaker.Allow(credential) {
		return nil, ErrCircuitOpen
	}

	key := cacheKey(reference, req.FileIndex, req.Filename)
	if entry, ok := r.cache.Get(key); ok {
		remaining := time.Until(entry.ExpiresAt)
		if remaining < 0 {
			remaining = 0
		}
		return &Outcome{URL: entry.URL, Filename: entry.Filename, TTL: remaining, FromCache: true}, nil
	}

	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.runWorkflow(key, req, credential)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entry := res.Val.(CachedLink)
		return &Outcome{URL: entry.URL, Filename: entry.Filename, TTL: r.cache.TTL()}, nil
	case <-ctx.Done():
		// The workflow keeps running for the other waiters.
		return nil, ctx.Err()
	}
}

// runWorkflow executes upload → poll → select → unlock → commit for one
// key. It owns its timeout; the single-flight group removes the pending
// entry when it returns, even on panic.
func (r *Resolver) runWorkflow(key string, req ResolveRequest, credential string) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[resolver] workflow panic for %s: %v", key, rec)
			err = fmt.Errorf("internal resolution error")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.workflowTimeout)
	defer cancel()

	provider, err := r.newProvider(req.Provider, credential)
	if err != nil {
		return nil, err
	}

	magnet := req.magnetURI()
	if magnet == "" {
		return nil, errors.New("no magnet to upload")
	}

	started := time.Now()
	added, err := provider.AddMagnet(ctx, magnet)
	if err != nil {
		if IsPermanentError(err) {
			// Permanent upload errors fail immediately: no polling, no
			// cache write.
			r.breaker.RecordFailure(credential)
			return nil, err
		}
		r.breaker.RecordFailure(credential)
		return nil, fmt.Errorf("add magnet: %w", err)
	}

	poller := NewPoller(provider, r.pollBudget)
	if r.tunePoller != nil {
		r.tunePoller(poller)
	}
	info, err := poller.WaitReady(ctx, added.ID)
	if err != nil {
		if _, retry := IsRetryLater(err); !retry {
			var failed *TorrentFailedError
			if !errors.As(err, &failed) {
				r.breaker.RecordFailure(credential)
			}
		}
		return nil, err
	}

	file, reason := ChooseFile(info.Files, FileTarget{
		Filename:  req.Filename,
		FileIndex: req.FileIndex,
		Season:    req.Season,
		Episode:   req.Episode,
	})
	if file == nil {
		return nil, &RetryLaterError{Reason: "no playable file available yet, retry later"}
	}
	log.Printf("[resolver] %s: chose %q (%s)", key, file.Path, reason)

	finalURL := file.Link
	filename := path.Base(file.Path)
	if unlocked, unlockErr := provider.UnrestrictLink(ctx, file.Link); unlockErr == nil {
		finalURL = unlocked.DownloadURL
		if unlocked.Filename != "" {
			filename = unlocked.Filename
		}
	} else {
		if IsPermanentError(unlockErr) || finalURL == "" {
			r.breaker.RecordFailure(credential)
			return nil, fmt.Errorf("unlock link: %w", unlockErr)
		}
		// Fall back to the pre-unlock link rather than failing outright.
		log.Printf("[resolver] %s: unlock failed (%v), falling back to restricted link", key, unlockErr)
	}

	r.breaker.RecordSuccess(credential)

	entry := CachedLink{URL: finalURL, Filename: filename, ExpiresAt: time.Now().Add(r.cache.TTL())}
	r.cache.Set(key, entry)
	log.Printf("[resolver] %s: resolved in %s", key, time.Since(started).Round(time.Millisecond))
	return entry, nil
}
