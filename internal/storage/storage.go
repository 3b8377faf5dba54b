// Package storage provides the shared SQLite database and the document chunk
// store backing retrieval.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gowows/kbserve/internal/models"
)

// Open opens or creates the SQLite database at dbPath with WAL enabled.
// Parent directories are created if they do not exist. The returned handle is
// shared by the chunk store, the answer cache, and the feedback store.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// SQLite serializes writers; busy_timeout avoids spurious SQLITE_BUSY
	// under concurrent resolve calls.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

// ChunkStore persists extracted document chunks for retrieval.
type ChunkStore interface {
	// ReplaceChunks atomically replaces all chunks for a document.
	ReplaceChunks(ctx context.Context, documentKey string, chunks []*models.Chunk) error
	// ChunksByID returns the chunks with the given IDs, in the given order.
	// Unknown IDs are skipped.
	ChunksByID(ctx context.Context, ids []string) ([]*models.Chunk, error)
	// ChunksByDocument returns all chunks for a document ordered by index.
	ChunksByDocument(ctx context.Context, documentKey string) ([]*models.Chunk, error)
	// DeleteChunks removes all chunks for a document.
	DeleteChunks(ctx context.Context, documentKey string) error
	// CountChunks returns the total number of stored chunks.
	CountChunks(ctx context.Context) (int64, error)
	// CountDocuments returns the number of distinct documents with chunks.
	CountDocuments(ctx context.Context) (int64, error)
}
