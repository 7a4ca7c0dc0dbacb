// Package scorer assigns multi-dimension relevance scores to stored
// opportunities using a text-generation model.
package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/builder-radar/internal/fault"
	"github.com/sells-group/builder-radar/internal/llm"
	"github.com/sells-group/builder-radar/internal/llmjson"
	"github.com/sells-group/builder-radar/internal/model"
)

// Score bounds applied to every numeric dimension.
const (
	MinScore = 1.0
	MaxScore = 10.0
)

const scorePrompt = `You are an expert advisor to independent Web3 builders. Score the opportunity below from 1 to 10 on each dimension.

Opportunity:
%s

Dimensions:
- prize_score: size and accessibility of the reward
- urgency_score: how soon action is needed (a closer deadline scores higher)
- quality_score: credibility and reputation of the organizer
- builder_match: fit for a small team shipping a working product
- total_score: overall recommendation

Respond with ONLY one JSON object, no other text:
{"total_score": 0, "prize_score": 0, "urgency_score": 0, "quality_score": 0, "builder_match": 0, "reason": "one or two sentences"}`

// Store is the persistence the scorer needs.
type Store interface {
	HasScore(ctx context.Context, id int64) (bool, error)
	SetScore(ctx context.Context, id int64, score model.Score) error
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTimeout bounds each generation call. Zero means no extra bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		s.timeout = d
	}
}

// Scorer runs the scoring stage.
type Scorer struct {
	gen     llm.Generator
	store   Store
	timeout time.Duration
}

// New creates a Scorer.
func New(gen llm.Generator, store Store, opts ...Option) *Scorer {
	s := &Scorer{gen: gen, store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score scores opp unless it already has a score. It returns the written
// score, or nil when the opportunity was skipped or scoring failed. Failures
// are logged and leave the row unscored for a later run.
func (s *Scorer) Score(ctx context.Context, opp model.Opportunity) model.Score {
	score, err := s.Run(ctx, opp)
	if err != nil {
		zap.L().Warn("scorer: scoring failed",
			zap.Int64("opportunity_id", opp.ID),
			zap.String("url", opp.URL),
			zap.Error(err),
		)
		return nil
	}
	return score
}

// Run is Score with the failure returned instead of logged. It returns
// (nil, nil) when the opportunity already has a score.
func (s *Scorer) Run(ctx context.Context, opp model.Opportunity) (model.Score, error) {
	log := zap.L().With(zap.Int64("opportunity_id", opp.ID), zap.String("url", opp.URL))

	scored, err := s.store.HasScore(ctx, opp.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: check score %d", opp.ID)
	}
	if scored {
		log.Debug("scorer: already scored, skipping")
		return nil, nil
	}

	prompt, err := buildPrompt(opp)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.gen.Generate(callCtx, prompt)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: generate %d", opp.ID)
	}

	score, err := Parse(text)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetScore(ctx, opp.ID, score); err != nil {
		return nil, eris.Wrapf(err, "scorer: save score %d", opp.ID)
	}

	log.Info("scorer: scored", zap.Float64("total_score", score.Total()))
	return score, nil
}

func buildPrompt(opp model.Opportunity) (string, error) {
	view := struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		Summary   string `json:"summary,omitempty"`
		PrizePool string `json:"prize_pool,omitempty"`
		Deadline  string `json:"deadline,omitempty"`
		Source    string `json:"source,omitempty"`
	}{
		Title:     opp.Title,
		URL:       opp.URL,
		Summary:   opp.Summary,
		PrizePool: opp.PrizePool,
		Source:    opp.Source,
	}
	if opp.Deadline != nil {
		view.Deadline = opp.Deadline.Format("2006-01-02")
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "scorer: marshal opportunity")
	}
	return fmt.Sprintf(scorePrompt, b), nil
}

// Parse extracts a score object from model output. Numeric dimensions are
// clamped to [MinScore, MaxScore]; total_score is required. Fields outside
// the known set are kept as reported.
func Parse(text string) (model.Score, error) {
	var raw map[string]any
	if err := llmjson.Decode(text, llmjson.Object, &raw, "score"); err != nil {
		if errors.Is(err, llmjson.ErrNotFound) {
			return nil, &fault.ParseError{What: "score", Err: err}
		}
		return nil, err
	}

	score := make(model.Score, len(raw))
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				score[k] = f
				continue
			}
		}
		score[k] = v
	}

	for _, dim := range model.ScoreDimensions {
		if _, present := score[dim]; !present || score[dim] == nil {
			if dim == model.FieldTotal {
				return nil, &fault.ParseError{What: "score", Err: eris.Errorf("missing %s", dim)}
			}
			delete(score, dim)
			continue
		}
		v, ok := score.Number(dim)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &fault.ParseError{What: "score", Err: eris.Errorf("%s is not numeric: %v", dim, score[dim])}
		}
		score[dim] = clamp(v)
	}

	if reason, ok := score[model.FieldReason]; ok {
		switch reason.(type) {
		case nil:
			delete(score, model.FieldReason)
		case string:
		default:
			score[model.FieldReason] = fmt.Sprint(reason)
		}
	}

	return score, nil
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
