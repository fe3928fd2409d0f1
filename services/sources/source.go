package sources

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"resolvarr/config"
	"resolvarr/models"
)

// QueryRequest provides normalized inputs to source implementations.
type QueryRequest struct {
	MediaType models.MediaType
	ContentID string // IMDB-style id (e.g. "tt0903747")
	Query     string // Optional display title for sources that search by text
	Season    int
	Episode   int
}

// StreamID renders the id a stremio-style backend expects for this request.
func (r QueryRequest) StreamID() string {
	if r.MediaType == models.MediaTypeSeries && r.Season > 0 && r.Episode > 0 {
		return fmt.Sprintf("%s:%d:%d", r.ContentID, r.Season, r.Episode)
	}
	return r.ContentID
}

// Source is an opaque capability returning stream candidates for a content
// request. Implementations must not let upstream failures escape the
// aggregator boundary with anything other than an error return; the
// aggregator converts errors to empty lists.
type Source interface {
	Name() string
	Query(ctx context.Context, req QueryRequest) ([]models.StreamCandidate, error)
}

// BuildSources creates sources from configuration, skipping disabled and
// unknown entries.
func BuildSources(configs []config.SourceConfig) []Source {
	var built []Source
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		switch strings.ToLower(cfg.Type) {
		case "torrentio":
			log.Printf("[sources] initializing torrentio source %q (options: %s)", cfg.Name, cfg.Options)
			built = append(built, NewTorrentioSource(nil, cfg.Options, cfg.Name))
		case "zilean":
			if strings.TrimSpace(cfg.URL) == "" {
				log.Printf("[sources] skipping zilean source %q: missing URL", cfg.Name)
				continue
			}
			log.Printf("[sources] initializing zilean source %q at %s", cfg.Name, cfg.URL)
			built = append(built, NewZileanSource(cfg.URL, cfg.Name, nil))
		default:
			log.Printf("[sources] unknown source type: %s", cfg.Type)
		}
	}
	return built
}

// addBrowserHeaders sets headers some upstreams expect before answering.
func addBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; resolvarr/1.0)")
	req.Header.Set("Accept", "application/json")
}
