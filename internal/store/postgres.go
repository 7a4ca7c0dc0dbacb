package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/internal/db"
	"github.com/sells-group/builder-radar/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool      db.Pool
	upsertSQL string
	closeFn   func()
}

var opportunityInsertColumns = []string{"title", "url", "deadline", "prize_pool", "summary", "source", "status"}

// NewPostgres connects a pool and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	s, err := newPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) (*PostgresStore, error) {
	upsertSQL, err := db.InsertIgnoreSQL(db.InsertIgnoreConfig{
		Table:       "opportunities",
		Columns:     opportunityInsertColumns,
		ConflictKey: "url",
		Returning:   "id",
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build upsert")
	}
	return &PostgresStore{pool: pool, upsertSQL: upsertSQL}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id            BIGSERIAL PRIMARY KEY,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL UNIQUE,
	deadline      DATE,
	prize_pool    TEXT,
	summary       TEXT,
	source        TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	score         JSONB,
	status        TEXT NOT NULL DEFAULT 'new'
);

CREATE INDEX IF NOT EXISTS idx_opportunities_total_score
	ON opportunities ((COALESCE((score->>'total_score')::float8, 0)) DESC, discovered_at DESC);
CREATE INDEX IF NOT EXISTS idx_opportunities_unscored
	ON opportunities (discovered_at) WHERE score IS NULL;

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	stage        TEXT NOT NULL DEFAULT 'idle',
	result       JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
`

const opportunityColumns = `id, title, url, deadline, COALESCE(prize_pool, ''), COALESCE(summary, ''), source, discovered_at, score, status`

const pgTotalScore = `COALESCE((score->>'total_score')::float8, 0)`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertIgnore(ctx context.Context, c model.Candidate) (model.UpsertResult, error) {
	var res model.UpsertResult
	err := s.pool.QueryRow(ctx, s.upsertSQL,
		c.Title, c.URL, c.Deadline, nullable(c.PrizePool), nullable(c.Summary), c.Source, string(model.StatusNew),
	).Scan(&res.ID, &res.Inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent insert committed after this statement's snapshot: the
		// conflict fired but the row was not yet visible. Read it back.
		err = s.pool.QueryRow(ctx, `SELECT id FROM opportunities WHERE url = $1`, c.URL).Scan(&res.ID)
		res.Inserted = false
	}
	if err != nil {
		return model.UpsertResult{}, eris.Wrapf(err, "postgres: upsert opportunity %s", c.URL)
	}
	return res, nil
}

func (s *PostgresStore) HasScore(ctx context.Context, id int64) (bool, error) {
	var scored bool
	err := s.pool.QueryRow(ctx,
		`SELECT score IS NOT NULL FROM opportunities WHERE id = $1`, id,
	).Scan(&scored)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrapf(ErrNotFound, "postgres: has score %d", id)
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has score %d", id)
	}
	return scored, nil
}

func (s *PostgresStore) SetScore(ctx context.Context, id int64, score model.Score) error {
	raw, err := encodeScore(score)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE opportunities SET score = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set score %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: set score %d", id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id)
	o, err := scanPgOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get opportunity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get opportunity %d", id)
	}
	return o, nil
}

func (s *PostgresStore) ListTop(ctx context.Context, opts ListOpts) ([]model.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	var where []string
	var args []any

	if opts.ScoredOnly {
		where = append(where, `score IS NOT NULL`)
	}
	if opts.MinScore != nil {
		args = append(args, *opts.MinScore)
		where = append(where, pgTotalScore+` >= $`+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY ` + pgTotalScore + ` DESC, discovered_at DESC`

	args = append(args, limitOr(opts.Limit, DefaultListLimit))
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	return s.queryOpportunities(ctx, "list top", query, args...)
}

func (s *PostgresStore) ListUnscored(ctx context.Context, limit int) ([]model.Opportunity, error) {
	return s.queryOpportunities(ctx, "list unscored",
		`SELECT `+opportunityColumns+` FROM opportunities WHERE score IS NULL ORDER BY discovered_at ASC, id ASC LIMIT $1`,
		limitOr(limit, DefaultListLimit),
	)
}

func (s *PostgresStore) queryOpportunities(ctx context.Context, op, query string, args ...any) ([]model.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	out := []model.Opportunity{}
	for rows.Next() {
		o, err := scanPgOpportunity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", op)
		}
		out = append(out, *o)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func scanPgOpportunity(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	var scoreJSON []byte
	var status string
	if err := row.Scan(&o.ID, &o.Title, &o.URL, &o.Deadline, &o.PrizePool, &o.Summary,
		&o.Source, &o.DiscoveredAt, &scoreJSON, &status); err != nil {
		return nil, err
	}
	score, err := decodeScore(scoreJSON)
	if err != nil {
		return nil, err
	}
	o.Score = score
	o.Status = model.Status(status)
	return &o, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.RunResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, stage, started_at) VALUES ($1, $2, $3, $4)`,
		run.RunID, string(model.RunStatusRunning), string(run.Stage), run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: create run %s", run.RunID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.RunResult) error {
	return s.finishRun(ctx, run, model.RunStatusCompleted)
}

func (s *PostgresStore) FailRun(ctx context.Context, run *model.RunResult) error {
	return s.finishRun(ctx, run, model.RunStatusFailed)
}

func (s *PostgresStore) finishRun(ctx context.Context, run *model.RunResult, status model.RunStatus) error {
	resultJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run result")
	}
	completed := run.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stage = $2, result = $3, error = $4, completed_at = $5 WHERE id = $6`,
		string(status), string(run.Stage), resultJSON, nullable(run.Error), completed, run.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.RunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", run.RunID)
	}
	return nil
}
