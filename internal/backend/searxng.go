package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/utils"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// SearXNG queries the JSON API of self-hosted or public SearXNG instances.
type SearXNG struct {
	client     *http.Client
	timeout    time.Duration
	userAgents []string
	pick       func(n int) int
}

func newSearXNG(opts Options) *SearXNG {
	uas := opts.UserAgents
	if len(uas) == 0 {
		uas = defaultUserAgents
	}
	return &SearXNG{
		client:     opts.HTTPClient,
		timeout:    opts.Timeout,
		userAgents: uas,
		pick:       rand.IntN,
	}
}

func (s *SearXNG) Name() string { return NameSearXNG }

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
	Answers []json.RawMessage `json:"answers"`
}

// searxngAnswer is the object form of an answer; older releases send plain strings.
type searxngAnswer struct {
	Answer string `json:"answer"`
	URL    string `json:"url"`
}

func (s *SearXNG) Search(ctx context.Context, baseURL string, q domain.SearchQuery, limit int) ([]domain.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("format", "json")
	params.Set("language", q.Language)
	params.Set("safesearch", "0")
	endpoint := strings.TrimRight(baseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.FatalError{Instance: baseURL, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgents[s.pick(len(s.userAgents))])

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(baseURL, err)
	}
	defer utils.Close(resp.Body)

	body, err := readBody(baseURL, resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(baseURL, resp.StatusCode, body)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, decodeError(baseURL, err)
	}

	hits := make([]domain.Hit, 0, limit+1)
	for _, raw := range parsed.Answers {
		a, ok := parseAnswer(raw)
		if !ok {
			continue
		}
		if a.URL == "" && len(parsed.Results) > 0 {
			a.URL = parsed.Results[0].URL
		}
		hits = append(hits, domain.Hit{URL: a.URL, Answer: a.Answer})
		break
	}
	for i, r := range parsed.Results {
		if limit > 0 && i >= limit {
			break
		}
		hits = append(hits, domain.Hit{URL: r.URL, Title: r.Title, Snippet: r.Content})
	}
	return hits, nil
}

func parseAnswer(raw json.RawMessage) (searxngAnswer, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return searxngAnswer{Answer: s}, s != ""
	}
	var a searxngAnswer
	if err := json.Unmarshal(raw, &a); err != nil {
		return searxngAnswer{}, false
	}
	a.Answer = strings.TrimSpace(a.Answer)
	return a, a.Answer != ""
}
