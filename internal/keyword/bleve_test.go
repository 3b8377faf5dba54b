package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "chunks.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchScopedByDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "c1", "docA", "the refund policy lasts thirty days"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, "c2", "docB", "refund requests go to support"); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "docA", "refund", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "c1" {
		t.Errorf("got %s", hits[0].ID)
	}
}

func TestBleveIndex_NoMatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "c1", "docA", "shipping times vary")

	hits, err := idx.Search(ctx, "docA", "refund", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestBleveIndex_DeleteDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "c1", "docA", "alpha beta")
	_ = idx.Index(ctx, "c2", "docA", "beta gamma")
	_ = idx.Index(ctx, "c3", "docB", "beta delta")

	if err := idx.DeleteDocument(ctx, "docA"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "docA", "beta", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("docA chunks should be gone, got %d", len(hits))
	}
	hits, _ = idx.Search(ctx, "docB", "beta", 10)
	if len(hits) != 1 {
		t.Errorf("docB should be untouched, got %d", len(hits))
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = idx.Index(ctx, "c1", "docA", "persistent entry")
	_ = idx.Close()

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	hits, err := reopened.Search(ctx, "docA", "persistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected entry to survive reopen, got %d hits", len(hits))
	}
}
