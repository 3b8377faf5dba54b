package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/gowows/kbserve/internal/embedding"
	"github.com/gowows/kbserve/internal/vector"
)

func BenchmarkCosine(b *testing.B) {
	x := make([]float32, 768)
	y := make([]float32, 768)
	for i := range x {
		x[i] = float32(i) / 768
		y[i] = float32(768-i) / 768
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = vector.Cosine(x, y)
	}
}

func BenchmarkIndexSearch(b *testing.B) {
	idx, _ := vector.NewIndex(384)
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i) / 1000
		ids[i] = fmt.Sprintf("chunk_%d", i)
	}
	_ = idx.Add(ids, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(query, 10)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "what is the refund policy for annual plans")
	}
}
