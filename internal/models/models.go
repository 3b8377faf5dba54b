// Package models defines core data structures for cache entries, resolve
// requests, and answer provenance.
package models

import (
	"strings"
	"time"
)

// AnswerSource tags where a resolved answer came from.
type AnswerSource string

const (
	// SourceExactCache means the answer was served from an exact (normalized
	// query text) cache hit.
	SourceExactCache AnswerSource = "exact_cache"
	// SourceSemanticCache means the answer was served from a semantically
	// similar previously answered question.
	SourceSemanticCache AnswerSource = "semantic_cache"
	// SourceGenerated means the answer was freshly generated by the language
	// model over retrieved chunks.
	SourceGenerated AnswerSource = "generated"
)

// CacheEntry is one previously answered question for one document.
type CacheEntry struct {
	DocumentKey string    `json:"document_key" db:"document_key"`
	Query       string    `json:"query" db:"query"`
	QueryNorm   string    `json:"-" db:"query_norm"`
	Answer      string    `json:"answer" db:"answer"`
	Embedding   []float32 `json:"-" db:"embedding"`
	HitCount    int64     `json:"hit_count" db:"hit_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ResolveRequest identifies a (document, question) pair to answer.
type ResolveRequest struct {
	// Path is the document path relative to the KB root, e.g.
	// "Standard/Standard1/story.pdf".
	Path string `json:"path"`
	// Query is the question text, stored verbatim and compared normalized.
	Query string `json:"query"`
}

// ResolveResult is a resolved answer with provenance.
type ResolveResult struct {
	Answer      string       `json:"answer"`
	Source      AnswerSource `json:"source"`
	DocumentKey string       `json:"document_key"`
	// Score is the best semantic similarity observed; only meaningful when
	// Source is SourceSemanticCache.
	Score float64 `json:"score,omitempty"`
}

// Chunk is a bounded segment of a document's extracted text, the unit of
// retrieval.
type Chunk struct {
	ID          string    `json:"id" db:"id"`
	DocumentKey string    `json:"document_key" db:"document_key"`
	Content     string    `json:"content" db:"content"`
	Index       int       `json:"chunk_index" db:"chunk_index"`
	Embedding   []float32 `json:"-" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CachedQuestion is a previously asked question listed for a document.
type CachedQuestion struct {
	Query     string    `json:"query"`
	HitCount  int64     `json:"hit_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeQuery returns the canonical form used for exact cache keying:
// surrounding whitespace trimmed and letters case-folded.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
