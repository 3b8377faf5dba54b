package answercache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/internal/vector"
)

// SQLiteCache implements Cache on the shared SQLite handle. Embeddings are
// stored as little-endian float32 blobs; a NULL blob marks a legacy entry
// without an embedding, which the semantic scan skips.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache initializes the answer cache schema on db.
func NewSQLiteCache(db *sql.DB) (*SQLiteCache, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS kb_answer_cache (
		document_key TEXT NOT NULL,
		query_norm TEXT NOT NULL,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		embedding BLOB,
		hit_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (document_key, query_norm)
	);

	CREATE INDEX IF NOT EXISTS idx_answer_cache_document ON kb_answer_cache(document_key);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize answer cache schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// GetAndTouch returns the entry for (documentKey, queryNorm), increments its
// hit count, and refreshes updated_at. The bump runs as a single UPDATE so
// concurrent exact hits never lose counts; the read happens in the same
// transaction.
func (c *SQLiteCache) GetAndTouch(ctx context.Context, documentKey, queryNorm string) (*models.CacheEntry, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE kb_answer_cache SET hit_count = hit_count + 1, updated_at = ?
		 WHERE document_key = ? AND query_norm = ?`,
		time.Now(), documentKey, queryNorm,
	)
	if err != nil {
		return nil, fmt.Errorf("touch cache entry: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT document_key, query_norm, query, answer, embedding, hit_count, created_at, updated_at
		 FROM kb_answer_cache WHERE document_key = ? AND query_norm = ?`,
		documentKey, queryNorm,
	))
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// FindByDocument returns all entries for a document that carry an embedding,
// in insertion order.
func (c *SQLiteCache) FindByDocument(ctx context.Context, documentKey string) ([]*models.CacheEntry, error) {
	return c.queryEntries(ctx,
		`SELECT document_key, query_norm, query, answer, embedding, hit_count, created_at, updated_at
		 FROM kb_answer_cache
		 WHERE document_key = ? AND embedding IS NOT NULL
		 ORDER BY created_at, query_norm`,
		documentKey,
	)
}

// Upsert creates or updates the entry keyed by (DocumentKey, QueryNorm).
func (c *SQLiteCache) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	var blob []byte
	if entry.Embedding != nil {
		blob = vector.EncodeFloat32s(entry.Embedding)
	}
	now := time.Now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kb_answer_cache
			(document_key, query_norm, query, answer, embedding, hit_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (document_key, query_norm) DO UPDATE SET
			answer = excluded.answer,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at,
			hit_count = hit_count + 1`,
		entry.DocumentKey, entry.QueryNorm, entry.Query, entry.Answer, blob, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Questions lists previously asked questions for a document, most asked first.
func (c *SQLiteCache) Questions(ctx context.Context, documentKey string) ([]*models.CachedQuestion, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT query, hit_count, updated_at FROM kb_answer_cache
		 WHERE document_key = ? ORDER BY hit_count DESC, updated_at DESC`,
		documentKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.CachedQuestion
	for rows.Next() {
		var q models.CachedQuestion
		if err := rows.Scan(&q.Query, &q.HitCount, &q.UpdatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

// Entries returns all entries for a document in insertion order.
func (c *SQLiteCache) Entries(ctx context.Context, documentKey string) ([]*models.CacheEntry, error) {
	return c.queryEntries(ctx,
		`SELECT document_key, query_norm, query, answer, embedding, hit_count, created_at, updated_at
		 FROM kb_answer_cache WHERE document_key = ? ORDER BY created_at, query_norm`,
		documentKey,
	)
}

// Count returns the total number of cache entries.
func (c *SQLiteCache) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_answer_cache`).Scan(&count)
	return count, err
}

func (c *SQLiteCache) queryEntries(ctx context.Context, query string, args ...any) ([]*models.CacheEntry, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	var blob []byte
	if err := row.Scan(
		&entry.DocumentKey, &entry.QueryNorm, &entry.Query, &entry.Answer,
		&blob, &entry.HitCount, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if blob != nil {
		entry.Embedding = vector.DecodeFloat32s(blob)
	}
	return &entry, nil
}
