// Package resolver implements the tiered answer pipeline: exact cache,
// semantic cache, then retrieval-augmented generation with a cache upsert.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gowows/kbserve/internal/answercache"
	"github.com/gowows/kbserve/internal/docid"
	"github.com/gowows/kbserve/internal/embedding"
	"github.com/gowows/kbserve/internal/llm"
	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/internal/vector"
)

// DefaultThreshold is the minimum cosine similarity for a semantic-cache hit.
const DefaultThreshold = 0.9

// DefaultTopK is how many chunks retrieval hands to the generator.
const DefaultTopK = 4

// Locator maps a client-supplied document path to the file on disk.
// It returns models.ErrNotFound (wrapped) for unknown paths and
// models.ErrInvalid for malformed ones.
type Locator interface {
	Locate(relPath string) (absPath string, err error)
}

// Retriever is the per-document index surface the resolver needs.
type Retriever interface {
	Ensure(ctx context.Context, documentKey, sourcePath string) error
	HasIndex(documentKey string) bool
	Retrieve(ctx context.Context, documentKey, query string, k int) ([]string, error)
}

// Resolver answers (document, query) requests through the cache tiers.
type Resolver struct {
	locator   Locator
	cache     answercache.Cache
	embedder  embedding.Embedder
	indexes   Retriever
	generator llm.Generator

	threshold float64
	topK      int

	group  singleflight.Group
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold overrides the semantic-cache similarity threshold.
func WithThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithTopK overrides how many chunks are retrieved for generation.
func WithTopK(k int) Option {
	return func(r *Resolver) { r.topK = k }
}

// WithLogger sets a logger for per-stage debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New wires a Resolver from its collaborators.
func New(
	locator Locator,
	cache answercache.Cache,
	embedder embedding.Embedder,
	indexes Retriever,
	generator llm.Generator,
	opts ...Option,
) *Resolver {
	r := &Resolver{
		locator:   locator,
		cache:     cache,
		embedder:  embedder,
		indexes:   indexes,
		generator: generator,
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve answers a query against a file in the knowledge base. The document
// must exist before any cache tier is consulted.
func (r *Resolver) Resolve(ctx context.Context, req models.ResolveRequest) (*models.ResolveResult, error) {
	if models.NormalizeQuery(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalid)
	}
	absPath, err := r.locator.Locate(req.Path)
	if err != nil {
		return nil, err
	}
	documentKey := docid.Key(req.Path)
	return r.resolve(ctx, documentKey, req.Query, func(ctx context.Context) error {
		return r.indexes.Ensure(ctx, documentKey, absPath)
	})
}

// ResolveWeb answers a query against a previously embedded web page.
// Pages are embedded explicitly; an unknown URL is a not-found, not a build.
func (r *Resolver) ResolveWeb(ctx context.Context, url, query string) (*models.ResolveResult, error) {
	if models.NormalizeQuery(query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalid)
	}
	documentKey := docid.WebKey(url)
	if !r.indexes.HasIndex(documentKey) {
		return nil, fmt.Errorf("%w: web page %s is not embedded", models.ErrNotFound, url)
	}
	return r.resolve(ctx, documentKey, query, func(ctx context.Context) error { return nil })
}

func (r *Resolver) resolve(ctx context.Context, documentKey, query string, ensure func(context.Context) error) (*models.ResolveResult, error) {
	normalized := models.NormalizeQuery(query)

	// Stage 1: exact match. The hit counter bump and the read are one
	// storage-side operation, so concurrent hits never lose increments.
	entry, err := r.cache.GetAndTouch(ctx, documentKey, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: exact lookup: %v", models.ErrStorage, err)
	}
	if entry != nil {
		r.logger.Debug("exact cache hit",
			zap.String("document_key", documentKey), zap.String("query", normalized))
		return &models.ResolveResult{
			Answer:      entry.Answer,
			Source:      models.SourceExactCache,
			DocumentKey: documentKey,
			Score:       1,
		}, nil
	}

	// One miss flight per (document, query) pair; concurrent identical
	// requests share the result instead of racing to generate.
	key := documentKey + "\x00" + normalized
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveMiss(ctx, documentKey, query, normalized, ensure)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ResolveResult), nil
}

func (r *Resolver) resolveMiss(ctx context.Context, documentKey, query, normalized string, ensure func(context.Context) error) (*models.ResolveResult, error) {
	// A request that queued behind an identical in-flight miss may find the
	// answer already cached by the time its flight runs.
	entry, err := r.cache.GetAndTouch(ctx, documentKey, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: exact lookup: %v", models.ErrStorage, err)
	}
	if entry != nil {
		return &models.ResolveResult{
			Answer:      entry.Answer,
			Source:      models.SourceExactCache,
			DocumentKey: documentKey,
			Score:       1,
		}, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", models.ErrGeneration, err)
	}

	// Stage 2: semantic match over this document's cached questions.
	// Read-only: a semantic reuse does not touch the original entry's counter.
	if result, ok, err := r.semanticLookup(ctx, documentKey, queryEmbedding); err != nil {
		return nil, err
	} else if ok {
		return result, nil
	}

	// Stage 3: retrieval-augmented generation.
	if err := ensure(ctx); err != nil {
		return nil, fmt.Errorf("%w: build index: %v", models.ErrGeneration, err)
	}
	contexts, err := r.indexes.Retrieve(ctx, documentKey, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve context: %v", models.ErrGeneration, err)
	}
	answer, err := r.generator.Generate(ctx, query, contexts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}

	// Cache write happens only after a successful answer.
	if err := r.cache.Upsert(ctx, &models.CacheEntry{
		DocumentKey: documentKey,
		Query:       query,
		QueryNorm:   normalized,
		Answer:      answer,
		Embedding:   queryEmbedding,
	}); err != nil {
		return nil, fmt.Errorf("%w: cache answer: %v", models.ErrStorage, err)
	}
	r.logger.Debug("answer generated",
		zap.String("document_key", documentKey),
		zap.String("query", normalized),
		zap.Int("context_chunks", len(contexts)))
	return &models.ResolveResult{
		Answer:      answer,
		Source:      models.SourceGenerated,
		DocumentKey: documentKey,
	}, nil
}

// semanticLookup scans cached entries for this document and returns the best
// one at or above the similarity threshold. Entries without embeddings or
// with mismatched dimensions are skipped, never errors.
func (r *Resolver) semanticLookup(ctx context.Context, documentKey string, queryEmbedding []float32) (*models.ResolveResult, bool, error) {
	candidates, err := r.cache.FindByDocument(ctx, documentKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: semantic lookup: %v", models.ErrStorage, err)
	}

	var best *models.CacheEntry
	var bestScore float64
	for _, c := range candidates {
		score, err := vector.Cosine(queryEmbedding, c.Embedding)
		if err != nil {
			if errors.Is(err, vector.ErrDimensionMismatch) {
				continue
			}
			return nil, false, fmt.Errorf("%w: semantic lookup: %v", models.ErrStorage, err)
		}
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	if best == nil || bestScore < r.threshold {
		return nil, false, nil
	}
	r.logger.Debug("semantic cache hit",
		zap.String("document_key", documentKey),
		zap.String("matched_query", best.QueryNorm),
		zap.Float64("score", bestScore))
	return &models.ResolveResult{
		Answer:      best.Answer,
		Source:      models.SourceSemanticCache,
		DocumentKey: documentKey,
		Score:       bestScore,
	}, true, nil
}
