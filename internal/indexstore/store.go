// Package indexstore manages per-document retrieval indexes: lazily built,
// persisted on disk, reused until the source document changes.
package indexstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/gowows/kbserve/internal/chunker"
	"github.com/gowows/kbserve/internal/embedding"
	"github.com/gowows/kbserve/internal/extract"
	"github.com/gowows/kbserve/internal/keyword"
	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/internal/storage"
	"github.com/gowows/kbserve/internal/vector"
)

// Store builds, persists, and queries per-document indexes. A document's
// index artifact lives at <dir>/<documentKey>.idx; its chunk texts live in
// the chunk store and its lexical form in the keyword index.
type Store struct {
	dir       string
	embedder  embedding.Embedder
	chunker   *chunker.Chunker
	extractor *extract.Extractor
	chunks    storage.ChunkStore
	keywords  keyword.ChunkIndex

	keywordWeight  float64
	semanticWeight float64

	mu     sync.RWMutex
	loaded map[string]*vector.Index
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithFusionWeights sets the keyword/semantic score weights used by Retrieve.
// A keyword weight of 0 makes retrieval purely vector-based.
func WithFusionWeights(keywordWeight, semanticWeight float64) Option {
	return func(s *Store) {
		s.keywordWeight = keywordWeight
		s.semanticWeight = semanticWeight
	}
}

// New creates a Store persisting index artifacts under dir.
func New(
	dir string,
	embedder embedding.Embedder,
	ch *chunker.Chunker,
	extractor *extract.Extractor,
	chunks storage.ChunkStore,
	keywords keyword.ChunkIndex,
	opts ...Option,
) *Store {
	s := &Store{
		dir:            dir,
		embedder:       embedder,
		chunker:        ch,
		extractor:      extractor,
		chunks:         chunks,
		keywords:       keywords,
		keywordWeight:  0.3,
		semanticWeight: 0.7,
		loaded:         make(map[string]*vector.Index),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) indexPath(documentKey string) string {
	return filepath.Join(s.dir, documentKey+".idx")
}

// HasIndex reports whether a persisted index artifact exists for the document.
func (s *Store) HasIndex(documentKey string) bool {
	s.mu.RLock()
	_, ok := s.loaded[documentKey]
	s.mu.RUnlock()
	if ok {
		return true
	}
	_, err := os.Stat(s.indexPath(documentKey))
	return err == nil
}

// Ensure makes the document's index available: already loaded, loaded from
// disk, or built from the source file (extract, chunk, embed, persist).
func (s *Store) Ensure(ctx context.Context, documentKey, sourcePath string) error {
	if _, err := s.index(documentKey); err == nil {
		return nil
	}
	text, err := s.extractor.Extract(sourcePath)
	if err != nil {
		return fmt.Errorf("extract %s: %w", sourcePath, err)
	}
	return s.build(ctx, documentKey, text)
}

// EnsureText is Ensure for documents whose text is already in hand
// (embedded web pages).
func (s *Store) EnsureText(ctx context.Context, documentKey, text string) error {
	if _, err := s.index(documentKey); err == nil {
		return nil
	}
	return s.build(ctx, documentKey, text)
}

// index returns the in-memory index for the document, loading the persisted
// artifact on first use.
func (s *Store) index(documentKey string) (*vector.Index, error) {
	s.mu.RLock()
	ix, ok := s.loaded[documentKey]
	s.mu.RUnlock()
	if ok {
		return ix, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ix, ok := s.loaded[documentKey]; ok {
		return ix, nil
	}
	ix, err := vector.LoadIndex(s.indexPath(documentKey))
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("index loaded from disk",
			zap.String("document_key", documentKey), zap.Int("vectors", ix.Size()))
	}
	s.loaded[documentKey] = ix
	return ix, nil
}

func (s *Store) build(ctx context.Context, documentKey, text string) error {
	chunks := s.chunker.Chunk(documentKey, text)
	if len(chunks) == 0 {
		// A document with no extractable words still gets a single empty-ish
		// chunk so retrieval has something to hand the generator.
		chunks = []*models.Chunk{{
			ID:          documentKey + "_0",
			DocumentKey: documentKey,
			Content:     text,
			Index:       0,
		}}
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	ix, err := vector.NewIndex(len(embeddings[0]))
	if err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := ix.Add(ids, embeddings); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}

	if err := s.chunks.ReplaceChunks(ctx, documentKey, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := s.keywords.DeleteDocument(ctx, documentKey); err != nil {
		return fmt.Errorf("clear keyword entries: %w", err)
	}
	for _, ch := range chunks {
		if err := s.keywords.Index(ctx, ch.ID, documentKey, ch.Content); err != nil {
			return fmt.Errorf("index keywords: %w", err)
		}
	}
	if err := ix.Save(s.indexPath(documentKey)); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	s.mu.Lock()
	s.loaded[documentKey] = ix
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Debug("index built",
			zap.String("document_key", documentKey), zap.Int("chunks", len(chunks)))
	}
	return nil
}

// Retrieve returns the top-k chunk texts for query, ordered by fused
// keyword+vector score. The index must exist (Ensure first).
func (s *Store) Retrieve(ctx context.Context, documentKey, query string, k int) ([]string, error) {
	ix, err := s.index(documentKey)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	semanticHits, err := ix.Search(queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var keywordHits []*keyword.Result
	if s.keywordWeight > 0 {
		keywordHits, err = s.keywords.Search(ctx, documentKey, query, k)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
	}

	ids := fuse(semanticHits, keywordHits, s.semanticWeight, s.keywordWeight, k)
	chunks, err := s.chunks.ChunksByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	return texts, nil
}

// Invalidate removes every artifact for the document: the persisted index,
// the in-memory copy, stored chunks, and keyword entries. The answer cache is
// deliberately untouched.
func (s *Store) Invalidate(ctx context.Context, documentKey string) error {
	s.mu.Lock()
	delete(s.loaded, documentKey)
	s.mu.Unlock()

	if err := os.Remove(s.indexPath(documentKey)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove index artifact: %w", err)
	}
	if err := s.chunks.DeleteChunks(ctx, documentKey); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.keywords.DeleteDocument(ctx, documentKey); err != nil {
		return fmt.Errorf("delete keyword entries: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("index invalidated", zap.String("document_key", documentKey))
	}
	return nil
}

// fuse merges semantic and keyword hits into one ranked chunk ID list.
// Keyword scores are normalized to [0,1] by the max; cosine scores are used
// as-is. Chunks hit by both rank highest.
func fuse(semantic []*vector.Result, keywords []*keyword.Result, semanticWeight, keywordWeight float64, k int) []string {
	var maxKeyword float64
	for _, r := range keywords {
		if r.Score > maxKeyword {
			maxKeyword = r.Score
		}
	}

	type fused struct {
		id    string
		score float64
	}
	scores := make(map[string]float64)
	order := make([]string, 0, len(semantic)+len(keywords))
	for _, r := range semantic {
		if _, ok := scores[r.ID]; !ok {
			order = append(order, r.ID)
		}
		scores[r.ID] += semanticWeight * r.Score
	}
	for _, r := range keywords {
		if _, ok := scores[r.ID]; !ok {
			order = append(order, r.ID)
		}
		if maxKeyword > 0 {
			scores[r.ID] += keywordWeight * (r.Score / maxKeyword)
		}
	}

	ranked := make([]fused, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, fused{id: id, score: scores[id]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	return ids
}
