// Package keyword provides a Bleve-backed keyword index over document chunks,
// used as the lexical side of hybrid retrieval.
package keyword

import "context"

// Result is a single keyword search hit; ID is the chunk ID.
type Result struct {
	ID    string
	Score float64
}

// ChunkIndex defines keyword indexing and search over chunks, scoped by
// document key.
type ChunkIndex interface {
	// Index adds one chunk's content under its document key.
	Index(ctx context.Context, chunkID, documentKey, content string) error
	// Search runs a match query over chunks of one document.
	Search(ctx context.Context, documentKey, query string, limit int) ([]*Result, error)
	// DeleteDocument removes every chunk indexed for the document.
	DeleteDocument(ctx context.Context, documentKey string) error
	Close() error
}
