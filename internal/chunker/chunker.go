// Package chunker splits extracted document text into overlapping chunks for
// retrieval indexing.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gowows/kbserve/internal/models"
)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a chunker with the given size and overlap (in words).
func New(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits text into chunks with overlapping windows. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Chunk(documentKey, text string) []*models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []*models.Chunk
	chunkIndex := 0
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, &models.Chunk{
			ID:          fmt.Sprintf("%s_%s", documentKey, uuid.New().String()[:8]),
			DocumentKey: documentKey,
			Content:     strings.Join(words[i:end], " "),
			Index:       chunkIndex,
		})
		chunkIndex++
		if end >= len(words) {
			break
		}
	}
	return chunks
}
