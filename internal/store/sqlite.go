package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/builder-radar/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL UNIQUE,
	deadline      DATETIME,
	prize_pool    TEXT,
	summary       TEXT,
	source        TEXT NOT NULL DEFAULT '',
	discovered_at DATETIME NOT NULL,
	score         TEXT,
	status        TEXT NOT NULL DEFAULT 'new'
);

CREATE INDEX IF NOT EXISTS idx_opportunities_discovered_at ON opportunities(discovered_at);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	stage        TEXT NOT NULL DEFAULT 'idle',
	result       TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);
`

const sqliteOpportunityColumns = `id, title, url, deadline, COALESCE(prize_pool, ''), COALESCE(summary, ''), source, discovered_at, score, status`

const sqliteTotalScore = `COALESCE(json_extract(score, '$.total_score'), 0)`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertIgnore(ctx context.Context, c model.Candidate) (model.UpsertResult, error) {
	var deadline any
	if c.Deadline != nil {
		deadline = c.Deadline.UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO opportunities (title, url, deadline, prize_pool, summary, source, discovered_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO NOTHING`,
		c.Title, c.URL, deadline, nullable(c.PrizePool), nullable(c.Summary), c.Source, s.now(), string(model.StatusNew),
	)
	if err != nil {
		return model.UpsertResult{}, eris.Wrapf(err, "sqlite: upsert opportunity %s", c.URL)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.UpsertResult{}, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return model.UpsertResult{}, eris.Wrap(err, "sqlite: last insert id")
		}
		return model.UpsertResult{ID: id, Inserted: true}, nil
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM opportunities WHERE url = ?`, c.URL).Scan(&id); err != nil {
		return model.UpsertResult{}, eris.Wrapf(err, "sqlite: lookup existing opportunity %s", c.URL)
	}
	return model.UpsertResult{ID: id, Inserted: false}, nil
}

func (s *SQLiteStore) HasScore(ctx context.Context, id int64) (bool, error) {
	var scored bool
	err := s.db.QueryRowContext(ctx,
		`SELECT score IS NOT NULL FROM opportunities WHERE id = ?`, id,
	).Scan(&scored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, eris.Wrapf(ErrNotFound, "sqlite: has score %d", id)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has score %d", id)
	}
	return scored, nil
}

func (s *SQLiteStore) SetScore(ctx context.Context, id int64, score model.Score) error {
	raw, err := encodeScore(score)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE opportunities SET score = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set score %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: set score %d", id)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteOpportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanSQLiteOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get opportunity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get opportunity %d", id)
	}
	return o, nil
}

func (s *SQLiteStore) ListTop(ctx context.Context, opts ListOpts) ([]model.Opportunity, error) {
	query := `SELECT ` + sqliteOpportunityColumns + ` FROM opportunities`
	var where []string
	var args []any

	if opts.ScoredOnly {
		where = append(where, `score IS NOT NULL`)
	}
	if opts.MinScore != nil {
		where = append(where, sqliteTotalScore+` >= ?`)
		args = append(args, *opts.MinScore)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY ` + sqliteTotalScore + ` DESC, discovered_at DESC LIMIT ?`
	args = append(args, limitOr(opts.Limit, DefaultListLimit))

	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	return s.queryOpportunities(ctx, "list top", query, args...)
}

func (s *SQLiteStore) ListUnscored(ctx context.Context, limit int) ([]model.Opportunity, error) {
	return s.queryOpportunities(ctx, "list unscored",
		`SELECT `+sqliteOpportunityColumns+` FROM opportunities WHERE score IS NULL ORDER BY discovered_at ASC, id ASC LIMIT ?`,
		limitOr(limit, DefaultListLimit),
	)
}

func (s *SQLiteStore) queryOpportunities(ctx context.Context, op, query string, args ...any) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	out := []model.Opportunity{}
	for rows.Next() {
		o, err := scanSQLiteOpportunity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", op)
		}
		out = append(out, *o)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteOpportunity(row scannable) (*model.Opportunity, error) {
	var o model.Opportunity
	var deadline sql.NullTime
	var scoreJSON sql.NullString
	var status string

	if err := row.Scan(&o.ID, &o.Title, &o.URL, &deadline, &o.PrizePool, &o.Summary,
		&o.Source, &o.DiscoveredAt, &scoreJSON, &status); err != nil {
		return nil, err
	}
	if deadline.Valid {
		d := deadline.Time.UTC()
		o.Deadline = &d
	}
	if scoreJSON.Valid {
		score, err := decodeScore([]byte(scoreJSON.String))
		if err != nil {
			return nil, err
		}
		o.Score = score
	}
	o.Status = model.Status(status)
	return &o, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.RunResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, stage, started_at) VALUES (?, ?, ?, ?)`,
		run.RunID, string(model.RunStatusRunning), string(run.Stage), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: create run %s", run.RunID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.RunResult) error {
	return s.finishRun(ctx, run, model.RunStatusCompleted)
}

func (s *SQLiteStore) FailRun(ctx context.Context, run *model.RunResult) error {
	return s.finishRun(ctx, run, model.RunStatusFailed)
}

func (s *SQLiteStore) finishRun(ctx context.Context, run *model.RunResult, status model.RunStatus) error {
	resultJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}
	completed := run.CompletedAt
	if completed.IsZero() {
		completed = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stage = ?, result = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), string(run.Stage), string(resultJSON), nullable(run.Error), completed.UTC(), run.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.RunID)
	}
	return checkRowsAffected(res, "run", run.RunID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
