// Package pipeline runs one discovery pass: search, extract, persist, score.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/search"
	"github.com/sells-group/builder-radar/internal/store"
)

// Extractor turns raw search results into opportunity candidates.
type Extractor interface {
	Extract(ctx context.Context, results []model.SearchResult) ([]model.Candidate, error)
}

// Scorer scores one stored opportunity. It returns (nil, nil) when the
// opportunity already has a score.
type Scorer interface {
	Run(ctx context.Context, opp model.Opportunity) (model.Score, error)
}

// Pipeline orchestrates a single linear pass over the configured queries.
type Pipeline struct {
	cfg       config.PipelineConfig
	store     store.Store
	search    search.Provider
	extractor Extractor
	scorer    Scorer
	newID     func() string
	now       func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	cfg config.PipelineConfig,
	st store.Store,
	provider search.Provider,
	extractor Extractor,
	sc Scorer,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		search:    provider,
		extractor: extractor,
		scorer:    sc,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes Idle → Searching → Extracting → Persisting → Scoring → Done.
// Per-item failures are logged and counted without aborting the run. A
// run-level failure (store unreachable, context cancelled) returns the error
// along with a result carrying whatever counts were achieved.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	result := &model.RunResult{
		RunID:     p.newID(),
		Stage:     model.StageIdle,
		Queries:   len(p.cfg.Queries),
		StartedAt: p.now(),
	}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting run", zap.Int("queries", result.Queries))

	if err := p.store.Ping(ctx); err != nil {
		err = eris.Wrap(err, "pipeline: store unreachable")
		log.Error("pipeline: run aborted", zap.Error(err))
		result.Error = err.Error()
		result.CompletedAt = p.now()
		return result, err
	}

	if err := p.store.CreateRun(ctx, result); err != nil {
		log.Warn("pipeline: failed to record run start", zap.Error(err))
	}

	fail := func(err error) (*model.RunResult, error) {
		log.Error("pipeline: run failed", zap.String("stage", string(result.Stage)), zap.Error(err))
		result.Success = false
		result.Error = err.Error()
		result.CompletedAt = p.now()
		if ferr := p.store.FailRun(context.WithoutCancel(ctx), result); ferr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(ferr))
		}
		return result, err
	}

	// Searching.
	result.Stage = model.StageSearching
	raw := p.searchAll(ctx, log, result)
	result.RawResults = len(raw)
	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "pipeline: searching"))
	}

	// Extracting.
	result.Stage = model.StageExtracting
	candidates, err := p.extractor.Extract(ctx, raw)
	if err != nil {
		log.Warn("pipeline: extraction failed, continuing with zero candidates", zap.Error(err))
		result.AddError(err.Error())
		candidates = nil
	}
	result.Candidates = len(candidates)
	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "pipeline: extracting"))
	}

	// Persisting.
	result.Stage = model.StagePersisting
	touched := p.persist(ctx, log, candidates, result)
	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "pipeline: persisting"))
	}

	// Scoring.
	result.Stage = model.StageScoring
	if err := p.scoreAll(ctx, log, touched, result); err != nil {
		return fail(err)
	}

	result.Stage = model.StageDone
	result.Success = true
	result.CompletedAt = p.now()
	if err := p.store.CompleteRun(ctx, result); err != nil {
		log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}

	log.Info("pipeline: run complete",
		zap.Int("raw_results", result.RawResults),
		zap.Int("candidates", result.Candidates),
		zap.Int("discovered", result.Discovered),
		zap.Int("existing", result.Existing),
		zap.Int("scored", result.Scored),
		zap.Int("score_failed", result.ScoreFailed),
		zap.Duration("elapsed", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// searchAll runs every query and concatenates the results in query order.
// A failed query contributes nothing.
func (p *Pipeline) searchAll(ctx context.Context, log *zap.Logger, result *model.RunResult) []model.SearchResult {
	perQuery := make([][]model.SearchResult, len(p.cfg.Queries))
	errs := make([]error, len(p.cfg.Queries))

	runQuery := func(i int) {
		queryCtx := ctx
		if d := p.cfg.SearchTimeout(); d > 0 {
			var cancel context.CancelFunc
			queryCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		perQuery[i], errs[i] = p.search.Search(queryCtx, p.cfg.Queries[i])
	}

	if p.cfg.ConcurrentSearch {
		var g errgroup.Group
		for i := range p.cfg.Queries {
			g.Go(func() error {
				runQuery(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range p.cfg.Queries {
			if ctx.Err() != nil {
				break
			}
			runQuery(i)
		}
	}

	var out []model.SearchResult
	for i, q := range p.cfg.Queries {
		if errs[i] != nil {
			log.Warn("pipeline: query failed",
				zap.String("stage", string(model.StageSearching)),
				zap.String("query", q),
				zap.Error(errs[i]),
			)
			result.QueriesFailed++
			result.AddError(errs[i].Error())
			continue
		}
		log.Debug("pipeline: query complete", zap.String("query", q), zap.Int("results", len(perQuery[i])))
		out = append(out, perQuery[i]...)
	}
	return out
}

// persist upserts each candidate and returns the touched opportunities in
// candidate order, deduplicated by id.
func (p *Pipeline) persist(ctx context.Context, log *zap.Logger, candidates []model.Candidate, result *model.RunResult) []model.Opportunity {
	seen := make(map[int64]bool, len(candidates))
	var touched []model.Opportunity

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		res, err := p.store.UpsertIgnore(ctx, c)
		if err != nil {
			log.Warn("pipeline: upsert failed",
				zap.String("stage", string(model.StagePersisting)),
				zap.String("url", c.URL),
				zap.Error(err),
			)
			result.AddError(err.Error())
			continue
		}
		if seen[res.ID] {
			continue
		}
		seen[res.ID] = true

		if res.Inserted {
			result.Discovered++
		} else {
			result.Existing++
		}

		opp := model.FromCandidate(c)
		if !res.Inserted {
			if stored, err := p.store.Get(ctx, res.ID); err == nil {
				opp = *stored
			} else {
				log.Debug("pipeline: reload existing opportunity failed", zap.Int64("opportunity_id", res.ID), zap.Error(err))
			}
		}
		opp.ID = res.ID
		touched = append(touched, opp)
	}
	return touched
}

// scoreAll scores the opportunities touched in this run followed by up to
// BacklogLimit older unscored rows. Only context cancellation is returned.
func (p *Pipeline) scoreAll(ctx context.Context, log *zap.Logger, touched []model.Opportunity, result *model.RunResult) error {
	queue := append([]model.Opportunity(nil), touched...)
	queued := make(map[int64]bool, len(touched))
	for _, o := range touched {
		queued[o.ID] = true
	}

	if p.cfg.BacklogLimit > 0 {
		backlog, err := p.store.ListUnscored(ctx, p.cfg.BacklogLimit)
		if err != nil {
			log.Warn("pipeline: list unscored backlog failed", zap.Error(err))
			result.AddError(err.Error())
		}
		for _, o := range backlog {
			if !queued[o.ID] {
				queued[o.ID] = true
				queue = append(queue, o)
			}
		}
	}

	log.Info("pipeline: scoring", zap.Int("touched", len(touched)), zap.Int("queued", len(queue)))

	for _, opp := range queue {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: scoring")
		}
		score, err := p.scorer.Run(ctx, opp)
		if err != nil {
			log.Warn("pipeline: scoring failed",
				zap.String("stage", string(model.StageScoring)),
				zap.Int64("opportunity_id", opp.ID),
				zap.String("url", opp.URL),
				zap.Error(err),
			)
			result.ScoreFailed++
			result.AddError(err.Error())
			continue
		}
		if score != nil {
			result.Scored++
		}
	}
	return nil
}
