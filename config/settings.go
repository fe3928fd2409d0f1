package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Sources   []SourceConfig    `json:"sources"`
	Debrid    DebridSettings    `json:"debrid"`
	Selection SelectionSettings `json:"selection"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceConfig describes one upstream torrent source.
type SourceConfig struct {
	Name    string `json:"name"`    // Display name
	Type    string `json:"type"`    // "torrentio", "zilean"
	URL     string `json:"url"`     // Base URL (zilean); empty uses the default for torrentio
	Options string `json:"options"` // Torrentio URL path options (e.g. "sort=qualitysize")
	Enabled bool   `json:"enabled"`
}

// DebridProviderSettings configures one premium download service account.
type DebridProviderSettings struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "alldebrid", "realdebrid"
	APIKey   string `json:"apiKey"`
	Enabled  bool   `json:"enabled"`
}

// DebridSettings controls the click-time resolver.
type DebridSettings struct {
	Providers []DebridProviderSettings `json:"providers"`

	// LinkSecret signs click-time URLs; generated on first start when empty.
	LinkSecret string `json:"linkSecret"`

	CacheTTLMinutes    int `json:"cacheTtlMinutes"`
	CacheCapacity      int `json:"cacheCapacity"`
	RequestTimeoutSec  int `json:"requestTimeoutSec"`
	RateLimitPerMinute int `json:"rateLimitPerMinute"`
	BreakerThreshold   int `json:"breakerThreshold"`
	BreakerResetSec    int `json:"breakerResetSec"`
	PollBudget         int `json:"pollBudget"` // Max status polls per resolution
}

// SelectionSettings controls candidate filtering and ranking.
type SelectionSettings struct {
	MaxSizeMovieGB     float64  `json:"maxSizeMovieGb"`
	MaxSizeEpisodeGB   float64  `json:"maxSizeEpisodeGb"`
	FilterOutTerms     []string `json:"filterOutTerms"`
	PreferredLanguages []string `json:"preferredLanguages"`
	ConservativeSizing bool     `json:"conservativeSizing"`
	FallbackQuality    bool     `json:"fallbackQuality"`
	SecondOpinion      bool     `json:"secondOpinion"`
	SourceTimeoutSec   int      `json:"sourceTimeoutSec"`
	MaxResults         int      `json:"maxResults"`
}

// LogConfig controls file logging and rotation.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7850},
		Sources: []SourceConfig{
			{Name: "Torrentio", Type: "torrentio", Enabled: true},
		},
		Debrid: DebridSettings{
			CacheTTLMinutes:    40,
			CacheCapacity:      2048,
			RequestTimeoutSec:  90,
			RateLimitPerMinute: 60,
			BreakerThreshold:   5,
			BreakerResetSec:    90,
			PollBudget:         24,
		},
		Selection: SelectionSettings{
			MaxSizeMovieGB:   18,
			MaxSizeEpisodeGB: 6,
			FallbackQuality:  true,
			SecondOpinion:    false,
			SourceTimeoutSec: 15,
			MaxResults:       80,
		},
		Log: LogConfig{MaxSize: 20, MaxAge: 14, MaxBackups: 5},
	}
}

// Manager loads and saves the settings file.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager builds a Manager for the given settings path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads settings from disk, creating defaults (including a generated
// link secret) when the file is missing, and backfilling zero values left
// by older configs.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		secret, err := generateSecret()
		if err != nil {
			return Settings{}, err
		}
		defaults.Debrid.LinkSecret = secret
		if err := m.save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	changed := backfill(&s)
	if strings.TrimSpace(s.Debrid.LinkSecret) == "" {
		secret, err := generateSecret()
		if err != nil {
			return Settings{}, err
		}
		s.Debrid.LinkSecret = secret
		changed = true
	}
	if changed {
		if err := m.save(s); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}

// Save persists settings to disk.
func (m *Manager) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(s)
}

func (m *Manager) save(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o600)
}

// backfill fills zero values introduced after a config was first written.
func backfill(s *Settings) bool {
	defaults := DefaultSettings()
	changed := false

	set := func(target *int, fallback int) {
		if *target <= 0 {
			*target = fallback
			changed = true
		}
	}
	set(&s.Server.Port, defaults.Server.Port)
	set(&s.Debrid.CacheTTLMinutes, defaults.Debrid.CacheTTLMinutes)
	set(&s.Debrid.CacheCapacity, defaults.Debrid.CacheCapacity)
	set(&s.Debrid.RequestTimeoutSec, defaults.Debrid.RequestTimeoutSec)
	set(&s.Debrid.RateLimitPerMinute, defaults.Debrid.RateLimitPerMinute)
	set(&s.Debrid.BreakerThreshold, defaults.Debrid.BreakerThreshold)
	set(&s.Debrid.BreakerResetSec, defaults.Debrid.BreakerResetSec)
	set(&s.Debrid.PollBudget, defaults.Debrid.PollBudget)
	set(&s.Selection.SourceTimeoutSec, defaults.Selection.SourceTimeoutSec)
	set(&s.Selection.MaxResults, defaults.Selection.MaxResults)

	if s.Server.Host == "" {
		s.Server.Host = defaults.Server.Host
		changed = true
	}
	if len(s.Sources) == 0 {
		s.Sources = defaults.Sources
		changed = true
	}
	return changed
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
