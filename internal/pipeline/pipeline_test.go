package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/fault"
	"github.com/sells-group/builder-radar/internal/model"
	"github.com/sells-group/builder-radar/internal/store"
)

func testConfig(concurrent bool) config.PipelineConfig {
	return config.PipelineConfig{
		Queries:           []string{"web3 hackathon 2026", "ethereum builder program", "solana grant"},
		ExtractCap:        15,
		ConcurrentSearch:  concurrent,
		BacklogLimit:      10,
		SearchTimeoutSecs: 5,
	}
}

func TestPipeline_Run_PartialSearchFailure(t *testing.T) {
	for _, concurrent := range []bool{true, false} {
		name := "sequential"
		if concurrent {
			name = "concurrent"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := &testStore{Store: newSQLiteStore(t)}

			provider := &mockProvider{}
			provider.On("Search", mock.Anything, "web3 hackathon 2026").Return(results("q1", 2), nil)
			provider.On("Search", mock.Anything, "ethereum builder program").Return(nil, fault.NewProviderError("brave", 503, []byte("unavailable")))
			provider.On("Search", mock.Anything, "solana grant").Return(results("q3", 1), nil)

			extractor := &mockExtractor{}
			extractor.On("Extract", mock.Anything, mock.MatchedBy(func(rs []model.SearchResult) bool {
				return len(rs) == 3 && rs[0].Title == "q1 result" && rs[2].Title == "q3 result"
			})).Return([]model.Candidate{candidate("a"), candidate("b")}, nil)

			sc := &mockScorer{}
			sc.On("Run", mock.Anything, mock.Anything).Return(model.Score{"total_score": 7.0}, nil)

			p := New(testConfig(concurrent), st, provider, extractor, sc)
			res, err := p.Run(ctx)

			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, model.StageDone, res.Stage)
			assert.Equal(t, 3, res.Queries)
			assert.Equal(t, 1, res.QueriesFailed)
			assert.Equal(t, 3, res.RawResults)
			assert.Equal(t, 2, res.Candidates)
			assert.Equal(t, 2, res.Discovered)
			assert.Equal(t, 2, res.Scored)
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], "503")
			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, 1, st.created)
			assert.Equal(t, 1, st.completed)

			provider.AssertNumberOfCalls(t, "Search", 3)
			extractor.AssertExpectations(t)
		})
	}
}

func TestPipeline_Run_ExtractionFailureYieldsZeroCandidates(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"parse error", &fault.ParseError{What: "extraction", Err: errors.New("invalid character")}},
		{"provider error", fault.NewProviderError("anthropic", 529, []byte("overloaded"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &testStore{Store: newSQLiteStore(t)}

			provider := &mockProvider{}
			provider.On("Search", mock.Anything, mock.Anything).Return(results("q", 3), nil)

			extractor := &mockExtractor{}
			extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, tt.err)

			sc := &mockScorer{}

			res, err := New(testConfig(true), st, provider, extractor, sc).Run(context.Background())

			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, 9, res.RawResults)
			assert.Zero(t, res.Candidates)
			assert.Zero(t, res.Discovered)
			assert.Len(t, res.Errors, 1)
			sc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestPipeline_Run_StoreUnreachable(t *testing.T) {
	st := &testStore{Store: newSQLiteStore(t), pingErr: errors.New("connection refused")}
	provider := &mockProvider{}
	extractor := &mockExtractor{}
	sc := &mockScorer{}

	res, err := New(testConfig(true), st, provider, extractor, sc).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unreachable")
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, model.StageIdle, res.Stage)
	assert.Contains(t, res.Error, "connection refused")
	assert.Zero(t, st.created)
	provider.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestPipeline_Run_ExistingAndBacklog(t *testing.T) {
	ctx := context.Background()
	sqlite := newSQLiteStore(t)

	// "known" resurfaces unscored; "stale" never resurfaces; "done" is already scored.
	known, err := sqlite.UpsertIgnore(ctx, candidate("known"))
	require.NoError(t, err)
	stale, err := sqlite.UpsertIgnore(ctx, candidate("stale"))
	require.NoError(t, err)
	done, err := sqlite.UpsertIgnore(ctx, candidate("done"))
	require.NoError(t, err)
	require.NoError(t, sqlite.SetScore(ctx, done.ID, model.Score{"total_score": 4.0}))

	provider := &mockProvider{}
	provider.On("Search", mock.Anything, mock.Anything).Return(results("q", 1), nil)

	extractor := &mockExtractor{}
	extractor.On("Extract", mock.Anything, mock.Anything).Return([]model.Candidate{
		candidate("known"), candidate("fresh"), candidate("known"), candidate("done"),
	}, nil)

	sc := &mockScorer{}
	sc.On("Run", mock.Anything, withURL("https://example.com/known")).Return(model.Score{"total_score": 6.0}, nil).Once()
	sc.On("Run", mock.Anything, withURL("https://example.com/fresh")).Return(model.Score{"total_score": 8.0}, nil).Once()
	sc.On("Run", mock.Anything, withURL("https://example.com/done")).Return(nil, nil).Once()
	sc.On("Run", mock.Anything, withURL("https://example.com/stale")).Return(model.Score{"total_score": 5.0}, nil).Once()

	res, err := New(testConfig(false), &testStore{Store: sqlite}, provider, extractor, sc).Run(ctx)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 2, res.Existing)
	assert.Equal(t, 3, res.Scored)
	assert.Zero(t, res.ScoreFailed)
	sc.AssertExpectations(t)

	// Existing rows are scored with their stored ids.
	sc.AssertCalled(t, "Run", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
		return o.URL == "https://example.com/known" && o.ID == known.ID
	}))
	sc.AssertCalled(t, "Run", mock.Anything, mock.MatchedBy(func(o model.Opportunity) bool {
		return o.URL == "https://example.com/stale" && o.ID == stale.ID
	}))
}

func TestPipeline_Run_PerItemFailuresIsolated(t *testing.T) {
	st := &testStore{Store: newSQLiteStore(t), failUpsert: "https://example.com/b"}

	provider := &mockProvider{}
	provider.On("Search", mock.Anything, mock.Anything).Return(results("q", 1), nil)

	extractor := &mockExtractor{}
	extractor.On("Extract", mock.Anything, mock.Anything).Return([]model.Candidate{
		candidate("a"), candidate("b"), candidate("c"),
	}, nil)

	sc := &mockScorer{}
	sc.On("Run", mock.Anything, withURL("https://example.com/a")).Return(nil, &fault.ParseError{What: "score", Err: errors.New("bad json")})
	sc.On("Run", mock.Anything, withURL("https://example.com/c")).Return(model.Score{"total_score": 9.0}, nil)

	res, err := New(testConfig(true), st, provider, extractor, sc).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Discovered)
	assert.Equal(t, 1, res.Scored)
	assert.Equal(t, 1, res.ScoreFailed)
	assert.Len(t, res.Errors, 2)
	sc.AssertNotCalled(t, "Run", mock.Anything, withURL("https://example.com/b"))

	stored, err := st.ListTop(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, o := range stored {
		assert.NotEqual(t, "https://example.com/b", o.URL)
	}
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	st := &testStore{Store: newSQLiteStore(t)}
	ctx, cancel := context.WithCancel(context.Background())

	provider := &mockProvider{}
	provider.On("Search", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(results("q", 1), nil)

	res, err := New(testConfig(false), st, provider, &mockExtractor{}, &mockScorer{}).Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.Equal(t, model.StageSearching, res.Stage)
	assert.Equal(t, 1, st.created)
	assert.Equal(t, 1, st.failed)
	provider.AssertNumberOfCalls(t, "Search", 1)
}

func TestNew(t *testing.T) {
	p := New(testConfig(true), nil, &mockProvider{}, &mockExtractor{}, &mockScorer{})
	require.NotNil(t, p)
	assert.NotEqual(t, p.newID(), p.newID())
}
