package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertIgnoreConfig describes an insert-if-absent keyed by a unique column.
type InsertIgnoreConfig struct {
	Table       string   // target table (e.g., "opportunities" or "radar.opportunities")
	Columns     []string // columns being inserted, bound as $1..$n in order
	ConflictKey string   // unique column; must also appear in Columns
	Returning   string   // column returned for both new and existing rows
}

// InsertIgnoreSQL builds a single statement that inserts a row unless the
// conflict key already exists, and in either case returns (Returning, inserted).
// The existing row is never modified.
func InsertIgnoreSQL(cfg InsertIgnoreConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert ignore: no columns specified")
	}
	if cfg.ConflictKey == "" {
		return "", eris.New("db: insert ignore: no conflict key specified")
	}
	if cfg.Returning == "" {
		return "", eris.New("db: insert ignore: no returning column specified")
	}

	keyPos := -1
	placeholders := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c == cfg.ConflictKey {
			keyPos = i + 1
		}
	}
	if keyPos < 0 {
		return "", eris.Errorf("db: insert ignore: conflict key %q not in columns", cfg.ConflictKey)
	}

	table := sanitizeTable(cfg.Table)
	key := pgx.Identifier{cfg.ConflictKey}.Sanitize()
	ret := pgx.Identifier{cfg.Returning}.Sanitize()

	return fmt.Sprintf(
		"WITH ins AS (INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING %s) "+
			"SELECT %s, true FROM ins UNION ALL SELECT %s, false FROM %s WHERE %s = $%d LIMIT 1",
		table, quoteAndJoin(cfg.Columns), strings.Join(placeholders, ", "), key, ret,
		ret, ret, table, key, keyPos,
	), nil
}

// sanitizeTable handles schema-qualified table names like "radar.opportunities".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
