package vectorindex

import (
	"context"
	"fmt"
	"testing"
)

const benchDim = 384

func benchVector(seed int) []float32 {
	v := make([]float32, benchDim)
	for i := range v {
		v[i] = float32((i*7+seed*13)%101) * 0.01
	}
	return v
}

func setupBenchIndex(b *testing.B, n int) *SQLiteIndex {
	b.Helper()
	ctx := context.Background()
	idx, err := NewSQLite(ctx, MemoryPath, "bench", nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = idx.Close() })
	if err := idx.EnsureCollection(ctx, benchDim); err != nil {
		b.Fatal(err)
	}

	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, record(fmt.Sprintf("pkg%d/file.go", i%50), i*10+1, i*10+9, benchVector(i), "go"))
	}
	if err := idx.Upsert(ctx, recs); err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkSearchOptimized(b *testing.B) {
	if !VectorExtensionAvailable {
		b.Skip("sqlite-vec extension not available")
	}
	idx := setupBenchIndex(b, 1000)
	ctx := context.Background()
	query := benchVector(3)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := idx.searchOptimized(ctx, query, 10, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchFallback(b *testing.B) {
	idx := setupBenchIndex(b, 1000)
	ctx := context.Background()
	query := benchVector(3)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := idx.searchFallback(ctx, query, 10, nil); err != nil {
			b.Fatal(err)
		}
	}
}
