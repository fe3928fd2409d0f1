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

// AllDebridClient handles API interactions with the AllDebrid service.
type AllDebridClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	agent      string
}

var _ Provider = (*AllDebridClient)(nil)

// NewAllDebridClient creates a new AllDebrid API client.
func NewAllDebridClient(apiKey string) *AllDebridClient {
	return &AllDebridClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.alldebrid.com/v4",
		agent:      "resolvarr",
	}
}

func (c *AllDebridClient) Name() string {
	return "alldebrid"
}

func init() {
	RegisterProvider("alldebrid", func(apiKey string) Provider {
		return NewAllDebridClient(apiKey)
	})
}

// allDebridResponse is the generic API response wrapper.
type allDebridResponse[T any] struct {
	Status string `json:"status"` // "success" or "error"
	Data   T      `json:"data,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type allDebridMagnet struct {
	Magnet string `json:"magnet,omitempty"`
	Name   string `json:"name,omitempty"`
	ID     int    `json:"id,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Ready  bool   `json:"ready,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type allDebridMagnetUploadData struct {
	Magnets []allDebridMagnet `json:"magnets"`
}

type allDebridStatus struct {
	ID         int                 `json:"id"`
	Filename   string              `json:"filename"`
	Size       int64               `json:"size"`
	Hash       string              `json:"hash,omitempty"`
	Status     string              `json:"status"`
	StatusCode int                 `json:"statusCode"`
	Downloaded int64               `json:"downloaded"`
	Seeders    int                 `json:"seeders"`
	Links      []allDebridLink     `json:"links,omitempty"`
	Files      []allDebridFileNode `json:"files,omitempty"` // v4.1 nested file tree
}

type allDebridLink struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// allDebridFileNode is a file or directory in the v4.1 nested tree.
type allDebridFileNode struct {
	N string              `json:"n"`           // name
	S int64               `json:"s,omitempty"` // size (files)
	L string              `json:"l,omitempty"` // link (files)
	E []allDebridFileNode `json:"e,omitempty"` // entries (directories)
}

// allDebridStatusData uses json.RawMessage because the magnets field is an
// object when queried by id and an array otherwise.
type allDebridStatusData struct {
	Magnets json.RawMessage `json:"magnets"`
}

type allDebridUnlock struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	ID       string `json:"id,omitempty"`
	Delayed  int    `json:"delayed,omitempty"`
}

// AllDebrid magnet status codes.
const (
	allDebridStatusInQueue             = 0
	allDebridStatusDownloading         = 1
	allDebridStatusCompressingMoving   = 2
	allDebridStatusUploading           = 3
	allDebridStatusReady               = 4
	allDebridStatusUploadFail          = 5
	allDebridStatusInternalErrorUnpack = 6
	allDebridStatusNotDownloaded20Min  = 7
	allDebridStatusFileTooBig          = 8
	allDebridStatusInternalError       = 9
	allDebridStatusDownloadTook72h     = 10
	allDebridStatusDeletedOnHoster     = 11
)

// permanentErrorCodes are API error codes retrying cannot fix: the request
// fails immediately with no polling.
var permanentErrorCodes = map[string]struct{}{
	"AUTH_BAD_APIKEY":        {},
	"AUTH_BLOCKED":           {},
	"AUTH_USER_BANNED":       {},
	"MUST_BE_PREMIUM":        {},
	"MAGNET_MUST_BE_PREMIUM": {},
	"MAGNET_NO_SERVER":       {},
	"FREE_TRIAL_LIMIT_REACHED": {},
	"LINK_HOST_NOT_SUPPORTED":  {},
}

func (c *AllDebridClient) apiError(code, message string) *ProviderError {
	_, permanent := permanentErrorCodes[code]
	return &ProviderError{Provider: c.Name(), Code: code, Message: message, Permanent: permanent}
}

func (c *AllDebridClient) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	return c.httpClient.Do(req)
}

func (c *AllDebridClient) checkAuthStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ProviderError{Provider: c.Name(), Code: "AUTH_BAD_APIKEY", Message: "authentication failed: invalid API key", Permanent: true}
	}
	return nil
}

// AddMagnet submits a magnet link and returns the torrent id.
func (c *AllDebridClient) AddMagnet(ctx context.Context, magnetURL string) (*AddMagnetResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alldebrid API key not configured")
	}
	trimmedMagnet := strings.TrimSpace(magnetURL)
	if trimmedMagnet == "" {
		return nil, fmt.Errorf("magnet URL is required")
	}

	formData := url.Values{}
	formData.Set("agent", c.agent)
	formData.Set("magnets[]", trimmedMagnet)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/magnet/upload", strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build add magnet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, fmt.Errorf("add magnet request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := c.checkAuthStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var result allDebridResponse[allDebridMagnetUploadData]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode add magnet response: %w (body: %s)", err, string(body))
	}
	if result.Status != "success" {
		if result.Error != nil {
			return nil, c.apiError(result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("add magnet failed: unknown error")
	}
	if len(result.Data.Magnets) == 0 {
		return nil, fmt.Errorf("no magnet data returned")
	}

	magnet := result.Data.Magnets[0]
	// Per-magnet errors (premium-only etc) come back inside a success
	// envelope.
	if magnet.Error != nil {
		return nil, c.apiError(magnet.Error.Code, magnet.Error.Message)
	}

	log.Printf("[alldebrid] magnet added: id=%d hash=%s name=%s ready=%v", magnet.ID, magnet.Hash, magnet.Name, magnet.Ready)
	return &AddMagnetResult{
		ID:    strconv.Itoa(magnet.ID),
		URI:   trimmedMagnet,
		Ready: magnet.Ready,
	}, nil
}

// GetTorrentInfo retrieves the torrent's status and file tree. Transient
// network failures are retried a few times; API errors are not.
func (c *AllDebridClient) GetTorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alldebrid API key not configured")
	}
	trimmedID := strings.TrimSpace(torrentID)
	if trimmedID == "" {
		return nil, fmt.Errorf("torrent ID is required")
	}

	// The v4.1 endpoint includes the nested file tree.
	endpoint := fmt.Sprintf("%s/magnet/status?agent=%s&id=%s",
		strings.Replace(c.baseURL, "/v4", "/v4.1", 1),
		url.QueryEscape(c.agent),
		trimmedID)

	body, err := retry.DoWithData(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		resp, err := c.doRequest(req)
		if err != nil {
			return nil, fmt.Errorf("torrent info request failed: %w", err)
		}
		defer resp.Body.Close()
		if err := c.checkAuthStatus(resp); err != nil {
			return nil, retry.Unrecoverable(err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("alldebrid returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return data, nil
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

	var result allDebridResponse[allDebridStatusData]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode torrent info response: %w (body: %s)", err, string(body))
	}
	if result.Status != "success" {
		if result.Error != nil {
			return nil, c.apiError(result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("get torrent info failed: unknown error")
	}
	if len(result.Data.Magnets) == 0 {
		return nil, fmt.Errorf("torrent not found (empty response)")
	}

	// The magnets field is an object when requesting by id, an array
	// otherwise.
	var status allDebridStatus
	if result.Data.Magnets[0] == '{' {
		if err := json.Unmarshal(result.Data.Magnets, &status); err != nil {
			return nil, fmt.Errorf("decode single magnet: %w", err)
		}
	} else {
		var magnets []allDebridStatus
		if err := json.Unmarshal(result.Data.Magnets, &magnets); err != nil {
			return nil, fmt.Errorf("decode magnets array: %w", err)
		}
		if len(magnets) == 0 {
			return nil, fmt.Errorf("torrent not found")
		}
		status = magnets[0]
	}

	info := &TorrentInfo{
		ID:       strconv.Itoa(status.ID),
		Filename: status.Filename,
		Hash:     status.Hash,
		Bytes:    status.Size,
		Status:   c.mapStatusCode(status.StatusCode),
		Progress: status.Downloaded,
		Seeders:  status.Seeders,
		Files:    make([]File, 0),
	}

	if len(status.Files) > 0 {
		c.flattenFileTree(status.Files, "", info)
	} else {
		// v4 flat links fallback
		for i, link := range status.Links {
			info.Files = append(info.Files, File{
				ID:    i,
				Path:  link.Filename,
				Bytes: link.Size,
				Link:  link.Link,
			})
		}
	}

	return info, nil
}

// flattenFileTree recursively flattens the nested v4.1 file tree.
func (c *AllDebridClient) flattenFileTree(nodes []allDebridFileNode, basePath string, info *TorrentInfo) {
	for _, node := range nodes {
		p := node.N
		if basePath != "" {
			p = basePath + "/" + node.N
		}
		if len(node.E) > 0 {
			c.flattenFileTree(node.E, p, info)
		} else if node.L != "" {
			info.Files = append(info.Files, File{
				ID:    len(info.Files),
				Path:  p,
				Bytes: node.S,
				Link:  node.L,
			})
		}
	}
}

func (c *AllDebridClient) mapStatusCode(statusCode int) string {
	switch statusCode {
	case allDebridStatusReady:
		return StatusDownloaded
	case allDebridStatusInQueue:
		return StatusQueued
	case allDebridStatusDownloading, allDebridStatusCompressingMoving, allDebridStatusUploading:
		return StatusDownloading
	case allDebridStatusDeletedOnHoster:
		return StatusDead
	case allDebridStatusUploadFail, allDebridStatusInternalErrorUnpack,
		allDebridStatusNotDownloaded20Min, allDebridStatusFileTooBig,
		allDebridStatusInternalError, allDebridStatusDownloadTook72h:
		return StatusError
	default:
		return StatusUnknown
	}
}

// SelectFiles is a no-op: AllDebrid auto-processes all files.
func (c *AllDebridClient) SelectFiles(ctx context.Context, torrentID string, fileIDs []int) error {
	return nil
}

// DeleteTorrent removes a torrent from the account.
func (c *AllDebridClient) DeleteTorrent(ctx context.Context, torrentID string) error {
	if c.apiKey == "" {
		return fmt.Errorf("alldebrid API key not configured")
	}
	trimmedID := strings.TrimSpace(torrentID)
	if trimmedID == "" {
		return fmt.Errorf("torrent ID is required")
	}

	formData := url.Values{}
	formData.Set("agent", c.agent)
	formData.Set("id", trimmedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/magnet/delete", strings.NewReader(formData.Encode()))
	if err != nil {
		return fmt.Errorf("build delete torrent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doRequest(req)
	if err != nil {
		return fmt.Errorf("delete torrent request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := c.checkAuthStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	var result allDebridResponse[interface{}]
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode delete response: %w (body: %s)", err, string(body))
	}
	if result.Status != "success" {
		if result.Error != nil {
			return c.apiError(result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("delete torrent failed: unknown error")
	}
	return nil
}

// UnrestrictLink converts a restricted AllDebrid link into a direct
// download URL.
func (c *AllDebridClient) UnrestrictLink(ctx context.Context, link string) (*UnrestrictResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alldebrid API key not configured")
	}
	trimmedLink := strings.TrimSpace(link)
	if trimmedLink == "" {
		return nil, fmt.Errorf("link is required")
	}

	formData := url.Values{}
	formData.Set("agent", c.agent)
	formData.Set("link", trimmedLink)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/link/unlock", strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build unrestrict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, fmt.Errorf("unrestrict request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := c.checkAuthStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var result allDebridResponse[allDebridUnlock]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode unrestrict response: %w (body: %s)", err, string(body))
	}
	if result.Status != "success" {
		if result.Error != nil {
			return nil, c.apiError(result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("unrestrict failed: unknown error")
	}
	if result.Data.Delayed > 0 {
		return nil, fmt.Errorf("link is being processed, try again in %d seconds", result.Data.Delayed)
	}

	return &UnrestrictResult{
		ID:          result.Data.ID,
		Filename:    result.Data.Filename,
		Filesize:    result.Data.Filesize,
		DownloadURL: result.Data.Link,
	}, nil
}
