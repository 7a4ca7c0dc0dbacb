// Package search adapts web search APIs to the pipeline's raw result type.
package search

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/pkg/brave"
	"github.com/sells-group/builder-radar/pkg/jina"
)

// DefaultPageSize is the number of results requested per query.
const DefaultPageSize = 10

// Provider runs one keyword query against a web search service.
// Results are not deduplicated across queries.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// New builds the Provider selected by cfg.Provider.
func New(cfg config.SearchConfig) (Provider, error) {
	switch cfg.Provider {
	case "", brave.ProviderName:
		opts := []brave.Option{brave.WithRateLimit(cfg.RateLimit)}
		if cfg.BraveBaseURL != "" {
			opts = append(opts, brave.WithBaseURL(cfg.BraveBaseURL))
		}
		return NewBrave(brave.NewClient(cfg.BraveKey, opts...), cfg.PageSize), nil
	case jina.ProviderName:
		var opts []jina.Option
		if cfg.JinaBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.JinaBaseURL))
		}
		return NewJina(jina.NewClient(cfg.JinaKey, opts...), cfg.PageSize), nil
	default:
		return nil, eris.Errorf("search: unknown provider %q", cfg.Provider)
	}
}

// Brave adapts the Brave Search client.
type Brave struct {
	client   brave.Client
	pageSize int
}

// NewBrave returns a Provider backed by Brave web search.
func NewBrave(client brave.Client, pageSize int) *Brave {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Brave{client: client, pageSize: pageSize}
}

// Name returns the provenance label for results from this provider.
func (b *Brave) Name() string { return brave.ProviderName }

// Search issues query and returns at most pageSize results.
func (b *Brave) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("search: empty query")
	}
	resp, err := b.client.WebSearch(ctx, query, b.pageSize)
	if err != nil {
		return nil, eris.Wrapf(err, "search: brave query %q", query)
	}

	out := make([]model.SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		if r.URL == "" {
			continue
		}
		out = append(out, model.SearchResult{
			Title:   PlainText(r.Title),
			URL:     r.URL,
			Snippet: PlainText(r.Description),
		})
		if len(out) == b.pageSize {
			break
		}
	}
	return out, nil
}

// Jina adapts the Jina search client.
type Jina struct {
	client   jina.Client
	pageSize int
}

// NewJina returns a Provider backed by Jina search.
func NewJina(client jina.Client, pageSize int) *Jina {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Jina{client: client, pageSize: pageSize}
}

// Name returns the provenance label for results from this provider.
func (j *Jina) Name() string { return jina.ProviderName }

// Search issues query and returns at most pageSize results.
func (j *Jina) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("search: empty query")
	}
	resp, err := j.client.Search(ctx, query, jina.WithCount(j.pageSize))
	if err != nil {
		return nil, eris.Wrapf(err, "search: jina query %q", query)
	}

	out := make([]model.SearchResult, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		out = append(out, model.SearchResult{
			Title:   PlainText(r.Title),
			URL:     r.URL,
			Snippet: truncate(PlainText(snippet), maxSnippetChars),
		})
	}
	return out, nil
}

// maxSnippetChars bounds snippets taken from page content.
const maxSnippetChars = 500

// PlainText reduces an HTML fragment (e.g. "Join the <strong>hackathon</strong>")
// to whitespace-normalized text.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
