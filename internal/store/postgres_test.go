package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/builder-radar/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s, err := newPostgresStore(mock)
	require.NoError(t, err)
	return s, mock
}

var opportunityRowColumns = []string{
	"id", "title", "url", "deadline", "prize_pool", "summary", "source", "discovered_at", "score", "status",
}

func TestPostgresStore_UpsertIgnore_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH ins AS \(INSERT INTO "opportunities" .* ON CONFLICT \("url"\) DO NOTHING RETURNING "id"\)`).
		WithArgs("ETHGlobal", "https://ethglobal.com", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "brave", "new").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(7), true))

	res, err := s.UpsertIgnore(context.Background(), model.Candidate{
		Title: "ETHGlobal", URL: "https://ethglobal.com", Source: "brave",
	})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertResult{ID: 7, Inserted: true}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertIgnore_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH ins AS`).
		WithArgs(pgxmock.AnyArg(), "https://ethglobal.com", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(int64(7), false))

	res, err := s.UpsertIgnore(context.Background(), model.Candidate{Title: "Dup", URL: "https://ethglobal.com"})
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, int64(7), res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertIgnore_ConcurrentInsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH ins AS`).
		WithArgs(pgxmock.AnyArg(), "https://ethglobal.com", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id FROM opportunities WHERE url = \$1`).
		WithArgs("https://ethglobal.com").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))

	res, err := s.UpsertIgnore(context.Background(), model.Candidate{Title: "Dup", URL: "https://ethglobal.com"})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertResult{ID: 9, Inserted: false}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertIgnore_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH ins AS`).WillReturnError(errors.New("connection reset"))

	_, err := s.UpsertIgnore(context.Background(), model.Candidate{Title: "A", URL: "https://a.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert opportunity")
}

func TestPostgresStore_HasScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT score IS NOT NULL FROM opportunities WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"scored"}).AddRow(true))
	mock.ExpectQuery(`SELECT score IS NOT NULL FROM opportunities WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnError(pgx.ErrNoRows)

	scored, err := s.HasScore(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, scored)

	_, err = s.HasScore(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE opportunities SET score = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE opportunities SET score`).
		WithArgs(pgxmock.AnyArg(), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.SetScore(context.Background(), 3, model.Score{"total_score": 7}))
	assert.ErrorIs(t, s.SetScore(context.Background(), 99, model.Score{"total_score": 7}), ErrNotFound)
	assert.Error(t, s.SetScore(context.Background(), 3, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(opportunityRowColumns).
		AddRow(int64(1), "A", "https://a.example", &deadline, "$10k", "summary", "brave", now, []byte(`{"total_score":9,"reason":"great"}`), "new").
		AddRow(int64(2), "B", "https://b.example", nil, "", "", "brave", now.Add(-time.Hour), []byte(nil), "new")

	mock.ExpectQuery(`FROM opportunities WHERE score IS NOT NULL AND COALESCE\(\(score->>'total_score'\)::float8, 0\) >= \$1 ORDER BY .* DESC, discovered_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(5.0, 3, 6).
		WillReturnRows(rows)

	minScore := 5.0
	got, err := s.ListTop(context.Background(), ListOpts{Limit: 3, Offset: 6, MinScore: &minScore, ScoredOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.InDelta(t, 9.0, got[0].Score.Total(), 0.001)
	assert.Equal(t, "great", got[0].Score.Reason())
	require.NotNil(t, got[0].Deadline)
	assert.True(t, deadline.Equal(*got[0].Deadline))
	assert.Nil(t, got[1].Score)
	assert.Nil(t, got[1].Deadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTop_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM opportunities ORDER BY .* LIMIT \$1$`).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows(opportunityRowColumns))

	got, err := s.ListTop(context.Background(), ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUnscored(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE score IS NULL ORDER BY discovered_at ASC, id ASC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(opportunityRowColumns).
			AddRow(int64(5), "C", "https://c.example", nil, "", "", "jina", now, []byte(nil), "new"))

	got, err := s.ListUnscored(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM opportunities WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	run := &model.RunResult{RunID: "run-1", Stage: model.StageIdle, StartedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO pipeline_runs`).
		WithArgs("run-1", "running", "idle", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE pipeline_runs SET status = \$1`).
		WithArgs("completed", "done", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE pipeline_runs SET status = \$1`).
		WithArgs("failed", "done", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.CreateRun(context.Background(), run))
	run.Stage = model.StageDone
	require.NoError(t, s.CompleteRun(context.Background(), run))

	err := s.FailRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateAndPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS opportunities`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT 1`).
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, s.Migrate(context.Background()))
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}
