// Package debrid drives the click-time resolution workflow: upload a
// torrent reference to a premium download service, poll until the files
// exist, pick the right in-torrent file and unlock a direct link.
package debrid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Normalized torrent statuses shared across providers.
const (
	StatusQueued           = "queued"
	StatusDownloading      = "downloading"
	StatusDownloaded       = "downloaded"
	StatusWaitingSelection = "waiting_selection"
	StatusError            = "error"
	StatusDead             = "dead"
	StatusUnknown          = "unknown"
)

// AddMagnetResult is the provider's answer to a magnet upload.
type AddMagnetResult struct {
	ID    string
	URI   string
	Ready bool // Provider already has the torrent cached
}

// File is one entry of a torrent's file list. Link, when present, is the
// provider's restricted link for the file; it still needs unlocking but
// serves as a fallback when unlocking fails.
type File struct {
	ID    int
	Path  string
	Bytes int64
	Link  string
}

// TorrentInfo is the provider-agnostic view of a torrent's status.
type TorrentInfo struct {
	ID       string
	Filename string
	Hash     string
	Bytes    int64
	// Status is one of the normalized Status* constants.
	Status string
	// Progress is downloaded bytes; zero until the provider reports any.
	Progress int64
	Seeders  int
	Files    []File
}

// UnrestrictResult is an unlocked direct link.
type UnrestrictResult struct {
	ID          string
	Filename    string
	Filesize    int64
	DownloadURL string
}

// Provider abstracts one premium download service account: upload, poll,
// select, unlock, delete. Implementations translate their own auth shape
// and response schema onto this surface.
type Provider interface {
	Name() string
	AddMagnet(ctx context.Context, magnetURL string) (*AddMagnetResult, error)
	GetTorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error)
	// SelectFiles marks files for download on providers that require it;
	// nil selects everything. Providers that auto-process may no-op.
	SelectFiles(ctx context.Context, torrentID string, fileIDs []int) error
	UnrestrictLink(ctx context.Context, link string) (*UnrestrictResult, error)
	DeleteTorrent(ctx context.Context, torrentID string) error
}

// ProviderError is a classified provider failure. Permanent errors (bad or
// banned credential, premium-only torrent, blocked network) fail the
// resolution immediately with no polling; everything else is transient.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Permanent bool
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsPermanentError reports whether err is a provider failure that retrying
// cannot fix.
func IsPermanentError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Permanent
}

// ProviderFactory builds a provider client bound to one API key.
type ProviderFactory func(apiKey string) Provider

var (
	providerMu        sync.RWMutex
	providerFactories = make(map[string]ProviderFactory)
)

// RegisterProvider makes a provider constructible by name. Called from
// provider init functions.
func RegisterProvider(name string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerFactories[strings.ToLower(name)] = factory
}

// NewProvider builds the named provider with the given API key.
func NewProvider(name, apiKey string) (Provider, error) {
	providerMu.RLock()
	factory, ok := providerFactories[strings.ToLower(strings.TrimSpace(name))]
	providerMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown debrid provider: %s", name)
	}
	return factory(apiKey), nil
}

// RegisteredProviders lists the known provider names, sorted.
func RegisteredProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
