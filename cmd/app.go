package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/digest"
	"github.com/sells-group/builder-radar/internal/extract"
	"github.com/sells-group/builder-radar/internal/llm"
	"github.com/sells-group/builder-radar/internal/pipeline"
	"github.com/sells-group/builder-radar/internal/scorer"
	"github.com/sells-group/builder-radar/internal/search"
	"github.com/sells-group/builder-radar/internal/store"
	"github.com/sells-group/builder-radar/pkg/telegram"
)

// appEnv holds the store and every component the configuration allows.
// Pipeline and Scorer are nil when their provider credentials are absent.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Scorer   *scorer.Scorer
	Digest   *digest.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates configuration for command, opens and migrates the store,
// and builds the components. Callers should defer env.Close().
func initApp(ctx context.Context, command string) (*appEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env, err := newAppEnv(ctx, cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// initStore opens the configured store and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newAppEnv wires components around an open store.
func newAppEnv(ctx context.Context, c *config.Config, st store.Store) (*appEnv, error) {
	env := &appEnv{Store: st}

	var gen llm.Generator
	if c.Validate("score") == nil {
		g, err := llm.New(ctx, c.LLM)
		if err != nil {
			return nil, err
		}
		gen = g
		env.Scorer = scorer.New(gen, st, scorer.WithTimeout(c.Pipeline.LLMTimeout()))
	} else {
		zap.L().Debug("llm not configured, scoring disabled", zap.String("provider", c.LLM.Provider))
	}

	if gen != nil && c.Validate("run") == nil {
		provider, err := search.New(c.Search)
		if err != nil {
			return nil, err
		}
		ex := extract.New(gen,
			extract.WithCap(c.Pipeline.ExtractCap),
			extract.WithSource(provider.Name()),
			extract.WithTimeout(c.Pipeline.LLMTimeout()),
		)
		env.Pipeline = pipeline.New(c.Pipeline, st, provider, ex, env.Scorer)
	} else {
		zap.L().Debug("search or llm not configured, discovery disabled", zap.String("provider", c.Search.Provider))
	}

	var tg telegram.Client
	if c.Validate("digest") == nil {
		var opts []telegram.Option
		if c.Telegram.BaseURL != "" {
			opts = append(opts, telegram.WithBaseURL(c.Telegram.BaseURL))
		}
		tg = telegram.NewClient(c.Telegram.Token, opts...)
	}
	env.Digest = digest.NewService(st, tg, digest.Config{
		ChatID:    c.Telegram.ChatID,
		ParseMode: c.Telegram.ParseMode,
		SiteURL:   c.Digest.SiteURL,
		TopN:      c.Digest.TopN,
		Timeout:   c.Pipeline.DeliveryTimeout(),
	})

	return env, nil
}
