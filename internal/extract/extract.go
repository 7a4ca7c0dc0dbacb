// Package extract turns raw search results into opportunity candidates using a
// text-generation model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/builder-radar/internal/llm"
	"github.com/sells-group/builder-radar/internal/llmjson"
	"github.com/sells-group/builder-radar/internal/model"
)

// DefaultCap bounds how many search results go into one extraction prompt.
const DefaultCap = 15

const extractPrompt = `You are a research assistant for Web3 builders. The JSON below lists web search results.
Identify every hackathon, grant program, or builder/accelerator program among them.

Search results:
%s

Respond with ONLY a JSON array, no other text. Each element must have these fields:
[{"title": "name of the program", "url": "canonical URL", "deadline": "YYYY-MM-DD or null", "prize_pool": "reward description or null", "summary": "one or two sentences", "source": "site or organizer"}]
If none of the results is an opportunity, respond with [].`

// deadlineLayouts are tried in order when normalizing a deadline string.
var deadlineLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCap overrides the number of search results embedded in the prompt.
func WithCap(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.cap = n
		}
	}
}

// WithSource sets the provenance label used when the model reports none.
func WithSource(source string) Option {
	return func(e *Extractor) {
		e.source = source
	}
}

// WithTimeout bounds the generation call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.timeout = d
	}
}

// Extractor runs the extraction stage.
type Extractor struct {
	gen      llm.Generator
	cap      int
	source   string
	timeout  time.Duration
	validate *validator.Validate
}

// New creates an Extractor that prompts gen.
func New(gen llm.Generator, opts ...Option) *Extractor {
	e := &Extractor{
		gen:      gen,
		cap:      DefaultCap,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract sends up to the configured cap of results to the model and returns
// the candidates it reports. A response with no JSON array yields an empty
// slice and no error. A response whose array cannot be decoded returns a
// *fault.ParseError; a failed provider call returns its error unchanged in
// the chain.
func (e *Extractor) Extract(ctx context.Context, results []model.SearchResult) ([]model.Candidate, error) {
	if len(results) == 0 {
		return []model.Candidate{}, nil
	}
	if len(results) > e.cap {
		results = results[:e.cap]
	}

	log := zap.L().With(zap.String("stage", "extract"), zap.Int("results", len(results)))

	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal results")
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.gen.Generate(callCtx, fmt.Sprintf(extractPrompt, payload))
	if err != nil {
		return nil, eris.Wrap(err, "extract: generate")
	}

	var raw []rawCandidate
	if err := llmjson.Decode(text, llmjson.Array, &raw, "extraction"); err != nil {
		if errors.Is(err, llmjson.ErrNotFound) {
			log.Warn("extract: no JSON array in response", zap.Int("response_len", len(text)))
			return []model.Candidate{}, nil
		}
		return nil, err
	}

	out := make([]model.Candidate, 0, len(raw))
	for i, r := range raw {
		c := e.normalize(r)
		if err := e.validate.Struct(c); err != nil {
			log.Debug("extract: dropping invalid candidate",
				zap.Int("index", i),
				zap.String("title", c.Title),
				zap.String("url", c.URL),
				zap.Error(err),
			)
			continue
		}
		out = append(out, c)
	}

	log.Info("extract: complete", zap.Int("reported", len(raw)), zap.Int("candidates", len(out)))
	return out, nil
}

func (e *Extractor) normalize(r rawCandidate) model.Candidate {
	c := model.Candidate{
		Title:     strings.TrimSpace(string(r.Title)),
		URL:       strings.TrimSpace(string(r.URL)),
		Deadline:  ParseDeadline(string(r.Deadline)),
		PrizePool: strings.TrimSpace(string(r.PrizePool)),
		Summary:   strings.TrimSpace(string(r.Summary)),
		Source:    strings.TrimSpace(string(r.Source)),
	}
	if c.Source == "" {
		c.Source = e.source
	}
	return c
}

// ParseDeadline normalizes a model-reported deadline to a UTC date. Unknown
// or unparseable values return nil.
func ParseDeadline(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

// rawCandidate mirrors the array element the prompt asks for.
type rawCandidate struct {
	Title     looseString `json:"title"`
	URL       looseString `json:"url"`
	Deadline  looseString `json:"deadline"`
	PrizePool looseString `json:"prize_pool"`
	Summary   looseString `json:"summary"`
	Source    looseString `json:"source"`
}

// looseString accepts a JSON string, number, or null. Models routinely emit
// prize pools as bare numbers and unknown fields as null.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		*s = looseString(num.String())
		return nil
	}
	*s = looseString(raw)
	return nil
}
