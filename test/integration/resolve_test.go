// Package integration exercises the full resolution pipeline on real storage
// (SQLite + bleve + on-disk index artifacts).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gowows/kbserve/internal/answercache"
	"github.com/gowows/kbserve/internal/catalog"
	"github.com/gowows/kbserve/internal/chunker"
	"github.com/gowows/kbserve/internal/docid"
	"github.com/gowows/kbserve/internal/embedding"
	"github.com/gowows/kbserve/internal/extract"
	"github.com/gowows/kbserve/internal/indexstore"
	"github.com/gowows/kbserve/internal/keyword"
	"github.com/gowows/kbserve/internal/llm"
	"github.com/gowows/kbserve/internal/models"
	"github.com/gowows/kbserve/internal/resolver"
	"github.com/gowows/kbserve/internal/storage"
)

type pipeline struct {
	resolver  *resolver.Resolver
	cache     *answercache.SQLiteCache
	indexes   *indexstore.Store
	generator *llm.MockGenerator
	kbRoot    string
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "kbserve.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	chunks, err := storage.NewSQLiteChunkStore(db)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := answercache.NewSQLiteCache(db)
	if err != nil {
		t.Fatal(err)
	}
	keywords, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = keywords.Close() })

	embedder := embedding.NewMockEmbedder(64)
	indexes := indexstore.New(
		filepath.Join(dir, "indexes"),
		embedder,
		chunker.New(30, 5),
		extract.NewExtractor(),
		chunks,
		keywords,
	)

	kbRoot := filepath.Join(dir, "kb")
	cat, err := catalog.New(kbRoot)
	if err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(kbRoot, "Standard", "Standard1")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	policy := "Refunds are available within 30 days of purchase. " +
		"Annual plans are refunded pro rata. Contact support to start a refund."
	if err := os.WriteFile(filepath.Join(sub, "policy.txt"), []byte(policy), 0644); err != nil {
		t.Fatal(err)
	}

	generator := &llm.MockGenerator{Answer: "Refunds are available within 30 days."}
	res := resolver.New(cat, cache, embedder, indexes, generator)
	return &pipeline{resolver: res, cache: cache, indexes: indexes, generator: generator, kbRoot: kbRoot}
}

func TestIntegration_GenerateThenExactCache(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	req := models.ResolveRequest{Path: "Standard/Standard1/policy.txt", Query: "What is the refund policy?"}

	first, err := p.resolver.Resolve(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Source != models.SourceGenerated {
		t.Errorf("first resolve source = %s, want %s", first.Source, models.SourceGenerated)
	}
	if first.Answer != "Refunds are available within 30 days." {
		t.Errorf("unexpected answer: %q", first.Answer)
	}

	// Same question with different casing and spacing is an exact hit.
	second, err := p.resolver.Resolve(ctx, models.ResolveRequest{
		Path:  req.Path,
		Query: "  what is the refund POLICY?  ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.Source != models.SourceExactCache {
		t.Errorf("second resolve source = %s, want %s", second.Source, models.SourceExactCache)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer %q differs from generated %q", second.Answer, first.Answer)
	}
	if calls := p.generator.Calls(); calls != 1 {
		t.Errorf("generator calls = %d, want 1", calls)
	}

	entries, err := p.cache.Entries(ctx, docid.Key(req.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("cache entries = %d, want 1", len(entries))
	}
	// 1 from the insert plus 1 from the exact hit.
	if entries[0].HitCount != 2 {
		t.Errorf("hit_count = %d, want 2", entries[0].HitCount)
	}
}

func TestIntegration_ConcurrentResolvesShareOneGeneration(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	req := models.ResolveRequest{Path: "Standard/Standard1/policy.txt", Query: "How do I start a refund?"}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.resolver.Resolve(ctx, req); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if calls := p.generator.Calls(); calls != 1 {
		t.Errorf("generator calls = %d, want 1", calls)
	}
	count, err := p.cache.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("cache entries = %d, want 1", count)
	}
}

func TestIntegration_InvalidationKeepsCachedAnswers(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	req := models.ResolveRequest{Path: "Standard/Standard1/policy.txt", Query: "Are annual plans refundable?"}

	if _, err := p.resolver.Resolve(ctx, req); err != nil {
		t.Fatal(err)
	}

	key := docid.Key(req.Path)
	if err := p.indexes.Invalidate(ctx, key); err != nil {
		t.Fatal(err)
	}

	// Index artifacts are gone, but the cached answer still serves the
	// identical question without touching the generator again.
	result, err := p.resolver.Resolve(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != models.SourceExactCache {
		t.Errorf("source after invalidation = %s, want %s", result.Source, models.SourceExactCache)
	}
	if calls := p.generator.Calls(); calls != 1 {
		t.Errorf("generator calls = %d, want 1", calls)
	}

	// A new question rebuilds the index from the source file.
	fresh, err := p.resolver.Resolve(ctx, models.ResolveRequest{Path: req.Path, Query: "Who do I contact for a refund?"})
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Source != models.SourceGenerated {
		t.Errorf("fresh question source = %s, want %s", fresh.Source, models.SourceGenerated)
	}
}
