package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/digest"
	"github.com/sells-group/builder-radar/internal/extract"
	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/pipeline"
	"github.com/sells-group/builder-radar/internal/scorer"
	"github.com/sells-group/builder-radar/internal/store"
)

// stubGenerator answers extraction prompts with a fixed array and every
// other prompt with a fixed score.
type stubGenerator struct {
	extraction string
	score      string
	calls      int
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	if strings.Contains(prompt, "Search results:") {
		return g.extraction, nil
	}
	return g.score, nil
}

type stubSearch struct {
	results []model.SearchResult
}

func (s *stubSearch) Name() string { return "brave" }

func (s *stubSearch) Search(context.Context, string) ([]model.SearchResult, error) {
	return s.results, nil
}

// unreachableStore fails Ping, as a store behind a dead connection would.
type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// newTestEnv wires real stages around st with stubbed providers.
func newTestEnv(t *testing.T, st store.Store) (*appEnv, *stubGenerator) {
	t.Helper()
	gen := &stubGenerator{
		extraction: `[{"title":"ETHGlobal Online","url":"https://ethglobal.com/events/online","prize_pool":"$500k","deadline":"2026-11-20"},` +
			`{"title":"Solana Breakout","url":"https://solana.com/breakout"}]`,
		score: `{"total_score": 8, "prize_score": 9, "urgency_score": 6, "quality_score": 8, "builder_match": 7, "reason": "large prize"}`,
	}
	sc := scorer.New(gen, st)
	p := pipeline.New(
		config.PipelineConfig{Queries: []string{"web3 hackathon 2026"}, BacklogLimit: 10},
		st,
		&stubSearch{results: []model.SearchResult{{Title: "ETHGlobal", URL: "https://ethglobal.com", Snippet: "hackathon"}}},
		extract.New(gen),
		sc,
	)
	return &appEnv{
		Store:    st,
		Pipeline: p,
		Scorer:   sc,
		Digest:   digest.NewService(st, nil, digest.Config{ChatID: "-100"}),
	}, gen
}
