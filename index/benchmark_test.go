package index

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// generateTestPhrases creates phrases sharing prefixes, like real query logs
func generateTestPhrases(count int) []string {
	stems := []string{"how to", "how do i", "what is", "where can", "why does"}
	phrases := make([]string, count)
	for i := 0; i < count; i++ {
		phrases[i] = fmt.Sprintf("%s topic %d item %d", stems[i%len(stems)], i%97, i)
	}
	return phrases
}

// BenchmarkInsert benchmarks building an index with single increments
func BenchmarkInsert(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("phrases_%d", size), func(b *testing.B) {
			phrases := generateTestPhrases(size)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				idx := New()

				start := time.Now()
				for _, phrase := range phrases {
					if err := idx.Insert(phrase); err != nil {
						b.Fatalf("Failed to insert %q: %v", phrase, err)
					}
				}
				duration := time.Since(start)

				b.ReportMetric(float64(size)/duration.Seconds(), "phrases/sec")
			}
		})
	}
}

// BenchmarkBootstrap benchmarks loading a snapshot through SetCount
func BenchmarkBootstrap(b *testing.B) {
	sizes := []int{1000, 10000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("phrases_%d", size), func(b *testing.B) {
			phrases := generateTestPhrases(size)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				idx := New()
				for j, phrase := range phrases {
					if err := idx.SetCount(phrase, int64(j%50+1)); err != nil {
						b.Fatalf("Failed to set count for %q: %v", phrase, err)
					}
				}
			}
		})
	}
}

// BenchmarkSearch benchmarks top-K queries of decreasing selectivity
func BenchmarkSearch(b *testing.B) {
	idx := New()
	for j, phrase := range generateTestPhrases(10000) {
		if err := idx.SetCount(phrase, int64(j%50+1)); err != nil {
			b.Fatalf("Failed to set count: %v", err)
		}
	}

	prefixes := []string{"how to topic 42 item", "how", ""}
	for _, prefix := range prefixes {
		b.Run(fmt.Sprintf("prefix_%q", prefix), func(b *testing.B) {
			ctx := context.Background()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := idx.Search(ctx, prefix, 5); err != nil {
					b.Fatalf("Search failed: %v", err)
				}
			}
		})
	}
}
