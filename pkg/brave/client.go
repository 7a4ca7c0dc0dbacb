// Package brave provides a client for the Brave Web Search API.
package brave

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/builder-radar/internal/fault"
)

const (
	defaultBaseURL = "https://api.search.brave.com/res/v1"

	// ProviderName labels errors and result provenance.
	ProviderName = "brave"

	// MaxCount is the largest page size the web search endpoint accepts.
	MaxCount = 20
)

// Client performs Brave web searches.
type Client interface {
	WebSearch(ctx context.Context, query string, count int) (*SearchResponse, error)
}

// SearchResponse is the subset of the web search response we consume.
type SearchResponse struct {
	Query Query    `json:"query"`
	Web   WebBlock `json:"web"`
}

// Query echoes the query as Brave interpreted it.
type Query struct {
	Original string `json:"original"`
}

// WebBlock holds the organic web results.
type WebBlock struct {
	Results []WebResult `json:"results"`
}

// WebResult is a single organic hit. Description may contain <strong> markup.
type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"age,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit paces requests to rps per second. Zero or negative disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Brave Search API client. The free plan allows one
// request per second, which is the default pacing.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) WebSearch(ctx context.Context, query string, count int) (*SearchResponse, error) {
	if query == "" {
		return nil, eris.New("brave: empty query")
	}
	if count <= 0 || count > MaxCount {
		count = MaxCount
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "brave: rate limit wait")
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "brave: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brave: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brave: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fault.NewProviderError(ProviderName, resp.StatusCode, body)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "brave: unmarshal response")
	}

	return &result, nil
}
