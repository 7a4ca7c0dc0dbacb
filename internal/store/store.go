package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/internal/model"
)

// ErrNotFound is returned by Get when no opportunity has the requested id.
var ErrNotFound = errors.New("store: opportunity not found")

// DefaultListLimit applies when ListOpts.Limit is unset.
const DefaultListLimit = 50

// ListOpts filters and pages ListTop.
type ListOpts struct {
	Limit      int      `json:"limit,omitempty"`
	Offset     int      `json:"offset,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
	ScoredOnly bool     `json:"scored_only,omitempty"`
}

// Store defines the persistence interface for opportunities and run summaries.
// Every write is an independent statement; nothing spans opportunities.
type Store interface {
	// Opportunities
	UpsertIgnore(ctx context.Context, c model.Candidate) (model.UpsertResult, error)
	HasScore(ctx context.Context, id int64) (bool, error)
	SetScore(ctx context.Context, id int64, score model.Score) error
	Get(ctx context.Context, id int64) (*model.Opportunity, error)
	// ListTop orders by total_score descending with unscored rows counted as
	// 0, then by discovered_at descending.
	ListTop(ctx context.Context, opts ListOpts) ([]model.Opportunity, error)
	// ListUnscored returns the oldest unscored rows first.
	ListUnscored(ctx context.Context, limit int) ([]model.Opportunity, error)

	// Runs
	CreateRun(ctx context.Context, run *model.RunResult) error
	CompleteRun(ctx context.Context, run *model.RunResult) error
	FailRun(ctx context.Context, run *model.RunResult) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		return NewSQLite(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// nullable maps "" to SQL NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeScore(score model.Score) ([]byte, error) {
	if score == nil {
		return nil, eris.New("store: nil score")
	}
	b, err := json.Marshal(score)
	return b, eris.Wrap(err, "store: marshal score")
}

func decodeScore(raw []byte) (model.Score, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s model.Score
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal score")
	}
	return s, nil
}
