package embeddings

import (
	"context"
	"fmt"
)

// RerankResult is one scored candidate (spec.md §6: `/rerank` contract).
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// Reranker scores a short candidate list against a query, used by
// SmartClassifier's mid-confidence fallback (spec.md §4.8).
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]RerankResult, error)
}

// NoopReranker is used when no reranker backend is configured; callers
// treat its error as "reranker call failed" and fall back to the
// embedding-positive set, as spec.md §4.8 requires.
type NoopReranker struct{}

func NewNoopReranker() *NoopReranker { return &NoopReranker{} }

func (NoopReranker) Rerank(ctx context.Context, query string, candidates []string) ([]RerankResult, error) {
	return nil, fmt.Errorf("reranker not configured")
}
