package feedback

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gowows/kbserve/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "fb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestFeedback_AddAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.Add(ctx, &Rating{DocumentKey: "doc", Query: "What is X?", Rating: 4})
	_ = store.Add(ctx, &Rating{DocumentKey: "doc", Query: "  what is x? ", Rating: 2, User: "alice"})

	stats, err := store.StatsFor(ctx, "doc", "WHAT IS X?")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRatings != 2 {
		t.Errorf("TotalRatings = %d, want 2 (variants should aggregate)", stats.TotalRatings)
	}
	if stats.AvgRating == nil || *stats.AvgRating != 3 {
		t.Errorf("AvgRating = %v, want 3", stats.AvgRating)
	}
}

func TestFeedback_StatsEmpty(t *testing.T) {
	store := newTestStore(t)
	stats, err := store.StatsFor(context.Background(), "doc", "never asked")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRatings != 0 || stats.AvgRating != nil {
		t.Errorf("got %+v", stats)
	}
}

func TestFeedback_DefaultUser(t *testing.T) {
	store := newTestStore(t)
	r := &Rating{DocumentKey: "doc", Query: "q", Rating: 5}
	if err := store.Add(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if r.User != "anonymous" {
		t.Errorf("User = %q", r.User)
	}
	if r.RatedOn.IsZero() {
		t.Error("RatedOn should be set")
	}
}
