// Package feedback stores user ratings of served answers and aggregates them
// per (document, normalized query).
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gowows/kbserve/internal/models"
)

// Rating is one user rating of a served answer.
type Rating struct {
	DocumentKey string    `json:"document_key"`
	Query       string    `json:"query"`
	Rating      int       `json:"rating"`
	User        string    `json:"user"`
	SessionID   string    `json:"session_id,omitempty"`
	RatedOn     time.Time `json:"rated_on"`
}

// Stats aggregates ratings for one (document, normalized query) pair.
type Stats struct {
	AvgRating    *float64 `json:"avg_rating"`
	TotalRatings int64    `json:"total_ratings"`
}

// Store persists answer ratings on the shared SQLite handle.
type Store struct {
	db *sql.DB
}

// NewStore initializes the feedback schema on db.
func NewStore(db *sql.DB) (*Store, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS response_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_key TEXT NOT NULL,
		query_norm TEXT NOT NULL,
		rating INTEGER NOT NULL,
		user TEXT NOT NULL,
		session_id TEXT,
		rated_on TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_pair ON response_feedback(document_key, query_norm);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize feedback schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Add records a rating. The query is stored normalized so ratings for
// case/whitespace variants of the same question aggregate together.
func (s *Store) Add(ctx context.Context, r *Rating) error {
	if r.User == "" {
		r.User = "anonymous"
	}
	r.RatedOn = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_feedback (document_key, query_norm, rating, user, session_id, rated_on)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.DocumentKey, models.NormalizeQuery(r.Query), r.Rating, r.User, r.SessionID, r.RatedOn,
	)
	if err != nil {
		return fmt.Errorf("add feedback: %w", err)
	}
	return nil
}

// StatsFor returns the average rating and rating count for the pair.
func (s *Store) StatsFor(ctx context.Context, documentKey, query string) (*Stats, error) {
	var stats Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(rating), COUNT(*) FROM response_feedback
		 WHERE document_key = ? AND query_norm = ?`,
		documentKey, models.NormalizeQuery(query),
	).Scan(&avg, &stats.TotalRatings)
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}
	if avg.Valid {
		stats.AvgRating = &avg.Float64
	}
	return &stats, nil
}
