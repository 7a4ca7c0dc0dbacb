// Package model defines the opportunity record and the values that flow between pipeline stages.
package model

import "time"

// Status is the lifecycle label of a stored opportunity. Only the default is
// written today; the column is reserved for later lifecycle states.
type Status string

const (
	StatusNew      Status = "new"
	StatusArchived Status = "archived"
)

// SearchResult is one raw hit returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Candidate is an opportunity extracted from search results but not yet persisted.
type Candidate struct {
	Title     string     `json:"title" validate:"required"`
	URL       string     `json:"url" validate:"required,url"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	PrizePool string     `json:"prize_pool,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Source    string     `json:"source,omitempty"`
}

// Opportunity is a persisted hackathon, grant, or builder program, identified by URL.
type Opportunity struct {
	ID           int64      `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	URL          string     `json:"url" db:"url"`
	Deadline     *time.Time `json:"deadline,omitempty" db:"deadline"`
	PrizePool    string     `json:"prize_pool,omitempty" db:"prize_pool"`
	Summary      string     `json:"summary,omitempty" db:"summary"`
	Source       string     `json:"source" db:"source"`
	DiscoveredAt time.Time  `json:"discovered_at" db:"discovered_at"`
	Score        Score      `json:"score,omitempty" db:"score"`
	Status       Status     `json:"status" db:"status"`
}

// Scored reports whether the scoring stage has written a score for this row.
func (o Opportunity) Scored() bool {
	return o.Score != nil
}

// FromCandidate builds an unsaved Opportunity carrying the candidate's fields.
func FromCandidate(c Candidate) Opportunity {
	return Opportunity{
		Title:     c.Title,
		URL:       c.URL,
		Deadline:  c.Deadline,
		PrizePool: c.PrizePool,
		Summary:   c.Summary,
		Source:    c.Source,
		Status:    StatusNew,
	}
}

// UpsertResult is the outcome of an insert-if-absent keyed by URL.
type UpsertResult struct {
	ID       int64 `json:"id"`
	Inserted bool  `json:"inserted"`
}
