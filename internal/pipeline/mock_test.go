package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/store"
)

// --- Search Mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SearchResult), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, results []model.SearchResult) ([]model.Candidate, error) {
	args := m.Called(ctx, results)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candidate), args.Error(1)
}

// --- Scorer Mock ---

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Run(ctx context.Context, opp model.Opportunity) (model.Score, error) {
	args := m.Called(ctx, opp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Score), args.Error(1)
}

// testStore wraps a real store to inject failures and count run-log writes.
type testStore struct {
	store.Store
	pingErr    error
	failUpsert string
	created    int
	completed  int
	failed     int
}

func (s *testStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

func (s *testStore) UpsertIgnore(ctx context.Context, c model.Candidate) (model.UpsertResult, error) {
	if s.failUpsert != "" && c.URL == s.failUpsert {
		return model.UpsertResult{}, context.DeadlineExceeded
	}
	return s.Store.UpsertIgnore(ctx, c)
}

func (s *testStore) CreateRun(ctx context.Context, run *model.RunResult) error {
	s.created++
	return s.Store.CreateRun(ctx, run)
}

func (s *testStore) CompleteRun(ctx context.Context, run *model.RunResult) error {
	s.completed++
	return s.Store.CompleteRun(ctx, run)
}

func (s *testStore) FailRun(ctx context.Context, run *model.RunResult) error {
	s.failed++
	return s.Store.FailRun(ctx, run)
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func results(prefix string, n int) []model.SearchResult {
	out := make([]model.SearchResult, n)
	for i := range out {
		out[i] = model.SearchResult{
			Title:   prefix + " result",
			URL:     "https://search.example/" + prefix + "/" + string(rune('a'+i)),
			Snippet: "snippet",
		}
	}
	return out
}

func candidate(slug string) model.Candidate {
	return model.Candidate{
		Title:  "Opportunity " + slug,
		URL:    "https://example.com/" + slug,
		Source: "brave",
	}
}

func withURL(url string) any {
	return mock.MatchedBy(func(o model.Opportunity) bool { return o.URL == url })
}
