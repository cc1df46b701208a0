// Package backend adapts concrete web search providers to the domain.Hit
// schema. Each provider is a strategy selected by name at construction.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

const (
	NameSearXNG = "searxng"
	NameTavily  = "tavily"

	DefaultTimeout = 30 * time.Second
	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 2 << 20
)

// Backend runs one query against one instance base URL.
type Backend interface {
	Name() string
	Search(ctx context.Context, baseURL string, q domain.SearchQuery, limit int) ([]domain.Hit, error)
}

// Options configures a backend.
type Options struct {
	Timeout    time.Duration
	APIKey     string       // tavily only
	UserAgents []string     // searxng rotation pool; defaults apply when empty
	HTTPClient *http.Client // optional, mainly for tests
}

// New returns the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameSearXNG, "":
		return newSearXNG(opts), nil
	case NameTavily:
		if opts.APIKey == "" {
			return nil, &domain.ConfigError{Field: "tavily_api_key", Reason: "required for the tavily backend"}
		}
		return newTavily(opts), nil
	default:
		return nil, &domain.ConfigError{Field: "search_backend", Reason: fmt.Sprintf("unknown backend %q", name)}
	}
}
