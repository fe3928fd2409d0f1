package debrid

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

	"github.com/avast/retry-go/v4"
)

// RealDebridClient handles API interactions with the Real-Debrid service.
// Unlike AllDebrid it requires explicit file selection before downloading
// starts.
type RealDebridClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

var _ Provider = (*RealDebridClient)(nil)

// NewRealDebridClient creates a new Real-Debrid API client.
func NewRealDebridClient(apiKey string) *RealDebridClient {
	return &RealDebridClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.real-debrid.com/rest/1.0",
	}
}

func (c *RealDebridClient) Name() string {
	return "realdebrid"
}

func init() {
	RegisterProvider("realdebrid", func(apiKey string) Provider {
		return NewRealDebridClient(apiKey)
	})
}

type realDebridError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// Real-Debrid numeric error codes that no retry can fix.
var realDebridPermanentCodes = map[int]struct{}{
	8:  {}, // bad_token
	9:  {}, // permission_denied
	14: {}, // account_locked
	15: {}, // account_not_activated
	22: {}, // ip_address_not_allowed
	35: {}, // infringing_file
}

type realDebridAddMagnet struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type realDebridTorrentInfo struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Hash     string  `json:"hash"`
	Bytes    int64   `json:"bytes"`
	Progress float64 `json:"progress"` // percent
	Status   string  `json:"status"`
	Seeders  int     `json:"seeders"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
	Links []string `json:"links"`
}

type realDebridUnrestrict struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Download string `json:"download"`
}

func (c *RealDebridClient) apiError(body []byte, httpStatus int) error {
	var apiErr realDebridError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		_, permanent := realDebridPermanentCodes[apiErr.ErrorCode]
		return &ProviderError{
			Provider:  c.Name(),
			Code:      strconv.Itoa(apiErr.ErrorCode),
			Message:   apiErr.Error,
			Permanent: permanent,
		}
	}
	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		return &ProviderError{Provider: c.Name(), Code: "8", Message: "authentication failed: invalid API key", Permanent: true}
	}
	return fmt.Errorf("realdebrid returned status %d: %s", httpStatus, strings.TrimSpace(string(body)))
}

func (c *RealDebridClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("realdebrid request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(body, resp.StatusCode)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode realdebrid response: %w (body: %s)", err, string(body))
	}
	return nil
}

// AddMagnet submits a magnet link and returns the torrent id.
func (c *RealDebridClient) AddMagnet(ctx context.Context, magnetURL string) (*AddMagnetResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("realdebrid API key not configured")
	}
	trimmedMagnet := strings.TrimSpace(magnetURL)
	if trimmedMagnet == "" {
		return nil, fmt.Errorf("magnet URL is required")
	}

	form := url.Values{}
	form.Set("magnet", trimmedMagnet)

	var added realDebridAddMagnet
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", form, &added); err != nil {
		return nil, err
	}
	if added.ID == "" {
		return nil, fmt.Errorf("no torrent id returned")
	}

	log.Printf("[realdebrid] magnet added: id=%s", added.ID)
	return &AddMagnetResult{ID: added.ID, URI: trimmedMagnet}, nil
}

// GetTorrentInfo retrieves the torrent's status and file list. Transient
// network failures are retried a few times; API errors are not.
func (c *RealDebridClient) GetTorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("realdebrid API key not configured")
	}
	trimmedID := strings.TrimSpace(torrentID)
	if trimmedID == "" {
		return nil, fmt.Errorf("torrent ID is required")
	}

	info, err := retry.DoWithData(func() (*realDebridTorrentInfo, error) {
		var payload realDebridTorrentInfo
		if err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(trimmedID), nil, &payload); err != nil {
			if IsPermanentError(err) {
				return nil, retry.Unrecoverable(err)
			}
			return nil, err
		}
		return &payload, nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	result := &TorrentInfo{
		ID:       info.ID,
		Filename: info.Filename,
		Hash:     strings.ToLower(info.Hash),
		Bytes:    info.Bytes,
		Status:   c.mapStatus(info.Status),
		Progress: int64(info.Progress / 100 * float64(info.Bytes)),
		Seeders:  info.Seeders,
		Files:    make([]File, 0, len(info.Files)),
	}

	// Links line up with selected files in order.
	linkIdx := 0
	for _, f := range info.Files {
		file := File{ID: f.ID, Path: f.Path, Bytes: f.Bytes}
		if f.Selected == 1 && linkIdx < len(info.Links) {
			file.Link = info.Links[linkIdx]
			linkIdx++
		}
		result.Files = append(result.Files, file)
	}

	return result, nil
}

func (c *RealDebridClient) mapStatus(status string) string {
	switch status {
	case "downloaded":
		return StatusDownloaded
	case "magnet_conversion", "queued":
		return StatusQueued
	case "waiting_files_selection":
		return StatusWaitingSelection
	case "downloading", "compressing", "uploading":
		return StatusDownloading
	case "dead":
		return StatusDead
	case "error", "virus", "magnet_error":
		return StatusError
	default:
		return StatusUnknown
	}
}

// SelectFiles marks torrent files for download; nil selects all of them.
func (c *RealDebridClient) SelectFiles(ctx context.Context, torrentID string, fileIDs []int) error {
	if c.apiKey == "" {
		return fmt.Errorf("realdebrid API key not configured")
	}
	trimmedID := strings.TrimSpace(torrentID)
	if trimmedID == "" {
		return fmt.Errorf("torrent ID is required")
	}

	selection := "all"
	if len(fileIDs) > 0 {
		ids := make([]string, 0, len(fileIDs))
		for _, id := range fileIDs {
			ids = append(ids, strconv.Itoa(id))
		}
		selection = strings.Join(ids, ",")
	}

	form := url.Values{}
	form.Set("files", selection)
	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(trimmedID), form, nil)
}

// DeleteTorrent removes a torrent from the account.
func (c *RealDebridClient) DeleteTorrent(ctx context.Context, torrentID string) error {
	if c.apiKey == "" {
		return fmt.Errorf("realdebrid API key not configured")
	}
	trimmedID := strings.TrimSpace(torrentID)
	if trimmedID == "" {
		return fmt.Errorf("torrent ID is required")
	}
	return c.do(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(trimmedID), nil, nil)
}

// UnrestrictLink converts a restricted Real-Debrid link into a direct
// download URL.
func (c *RealDebridClient) UnrestrictLink(ctx context.Context, link string) (*UnrestrictResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("realdebrid API key not configured")
	}
	trimmedLink := strings.TrimSpace(link)
	if trimmedLink == "" {
		return nil, fmt.Errorf("link is required")
	}

	form := url.Values{}
	form.Set("link", trimmedLink)

	var unlocked realDebridUnrestrict
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", form, &unlocked); err != nil {
		return nil, err
	}
	if unlocked.Download == "" {
		return nil, fmt.Errorf("no download link returned")
	}

	log.Printf("[realdebrid] unrestricted link: %s -> %s", trimmedLink, unlocked.Download)
	return &UnrestrictResult{
		ID:          unlocked.ID,
		Filename:    unlocked.Filename,
		Filesize:    unlocked.Filesize,
		DownloadURL: unlocked.Download,
	}, nil
}
