package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gowows/kbserve/internal/models"
)

// SQLiteChunkStore implements ChunkStore on the shared SQLite handle.
type SQLiteChunkStore struct {
	db *sql.DB
}

// NewSQLiteChunkStore initializes the chunk schema on db.
func NewSQLiteChunkStore(db *sql.DB) (*SQLiteChunkStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_key TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_key ON document_chunks(document_key, chunk_index);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize chunk schema: %w", err)
	}
	return &SQLiteChunkStore{db: db}, nil
}

// ReplaceChunks atomically replaces all chunks for a document.
func (s *SQLiteChunkStore) ReplaceChunks(ctx context.Context, documentKey string, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_key = ?`, documentKey); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_key, content, chunk_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentKey, chunk.Content, chunk.Index, chunk.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

// ChunksByID returns the chunks with the given IDs in the given order.
func (s *SQLiteChunkStore) ChunksByID(ctx context.Context, ids []string) ([]*models.Chunk, error) {
	chunks := make([]*models.Chunk, 0, len(ids))
	for _, id := range ids {
		var chunk models.Chunk
		err := s.db.QueryRowContext(ctx,
			`SELECT id, document_key, content, chunk_index, created_at
			 FROM document_chunks WHERE id = ?`, id,
		).Scan(&chunk.ID, &chunk.DocumentKey, &chunk.Content, &chunk.Index, &chunk.CreatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, nil
}

// ChunksByDocument returns all chunks for a document ordered by index.
func (s *SQLiteChunkStore) ChunksByDocument(ctx context.Context, documentKey string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_key, content, chunk_index, created_at
		 FROM document_chunks WHERE document_key = ? ORDER BY chunk_index`,
		documentKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentKey, &chunk.Content, &chunk.Index, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunks removes all chunks for a document.
func (s *SQLiteChunkStore) DeleteChunks(ctx context.Context, documentKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_key = ?`, documentKey)
	return err
}

// CountChunks returns the total number of stored chunks.
func (s *SQLiteChunkStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// CountDocuments returns the number of distinct documents with chunks.
func (s *SQLiteChunkStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT document_key) FROM document_chunks`).Scan(&count)
	return count, err
}
