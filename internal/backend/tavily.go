package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/utils"
)

const (
	// DefaultTavilyBaseURL is the public Tavily API root
	DefaultTavilyBaseURL = "https://api.tavily.com"
	// tavilyMaxResults is the upper bound the API accepts
	tavilyMaxResults = 20
)

// Tavily implements Backend for the Tavily search API.
type Tavily struct {
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

func newTavily(opts Options) *Tavily {
	return &Tavily{
		apiKey:  opts.APIKey,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
	}
}

func (t *Tavily) Name() string { return NameTavily }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

// tavilyResponse represents the response from Tavily API
type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, baseURL string, q domain.SearchQuery, limit int) ([]domain.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 5
	}
	if limit > tavilyMaxResults {
		limit = tavilyMaxResults
	}

	// Tavily expects the key in the body; newer deployments also read the header
	payload, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         q.Text,
		MaxResults:    limit,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, &domain.FatalError{Instance: baseURL, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.FatalError{Instance: baseURL, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransport(baseURL, err)
	}
	defer utils.Close(resp.Body)

	body, err := readBody(baseURL, resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(baseURL, resp.StatusCode, body)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, decodeError(baseURL, err)
	}

	hits := make([]domain.Hit, 0, len(parsed.Results)+1)
	if answer := strings.TrimSpace(parsed.Answer); answer != "" {
		src := ""
		if len(parsed.Results) > 0 {
			src = parsed.Results[0].URL
		}
		hits = append(hits, domain.Hit{URL: src, Answer: answer})
	}
	for i, r := range parsed.Results {
		if i >= limit {
			break
		}
		hits = append(hits, domain.Hit{URL: r.URL, Title: r.Title, Snippet: r.Content})
	}
	return hits, nil
}
