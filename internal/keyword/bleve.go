package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// chunkDoc is the shape Bleve indexes per chunk.
type chunkDoc struct {
	DocumentKey string `json:"document_key"`
	Content     string `json:"content"`
}

// BleveIndex implements ChunkIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve chunk index at path. An existing
// index is reused so unchanged documents keep their entries across restarts.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	contentMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so query terms
	// match the literal words in chunks.
	contentMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", contentMapping)

	keyMapping := bleve.NewTextFieldMapping()
	keyMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("document_key", keyMapping)

	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds one chunk under its document key.
func (b *BleveIndex) Index(ctx context.Context, chunkID, documentKey, content string) error {
	return b.index.Index(chunkID, chunkDoc{DocumentKey: documentKey, Content: content})
}

// Search runs a match query over the chunks of one document and returns up to
// limit hits ordered by score.
func (b *BleveIndex) Search(ctx context.Context, documentKey, query string, limit int) ([]*Result, error) {
	keyQuery := bleve.NewTermQuery(documentKey)
	keyQuery.SetField("document_key")
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	search := bleve.NewSearchRequest(bleve.NewConjunctionQuery(keyQuery, matchQuery))
	search.Size = limit
	results, err := b.index.SearchInContext(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DeleteDocument removes every chunk indexed for the document.
func (b *BleveIndex) DeleteDocument(ctx context.Context, documentKey string) error {
	keyQuery := bleve.NewTermQuery(documentKey)
	keyQuery.SetField("document_key")
	for {
		search := bleve.NewSearchRequest(keyQuery)
		search.Size = 500
		results, err := b.index.SearchInContext(ctx, search)
		if err != nil {
			return fmt.Errorf("find chunks to delete: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
	}
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
