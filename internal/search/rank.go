// Package search ranks catalog entities against a free-text query.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/search/index"
)

// RankTopK encodes query once, scores it against every row of idx and returns
// at most k distinct names, best first. An empty query or index yields an
// empty result.
func RankTopK(ctx context.Context, query string, idx *index.Index, prov embeddings.Provider, k int) ([]Match, error) {
	if strings.TrimSpace(query) == "" || idx.Len() == 0 || k <= 0 {
		return []Match{}, nil
	}
	if prov == nil {
		return nil, domain.ErrEncoderUnavailable
	}

	q, err := prov.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return RankVector(q, idx, k)
}

// RankVector ranks idx against an already encoded query.
func RankVector(q []float32, idx *index.Index, k int) ([]Match, error) {
	if idx.Len() == 0 || k <= 0 {
		return []Match{}, nil
	}
	scores, err := index.CosineAll(q, idx)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, len(scores))
	for i, s := range scores {
		matches[i] = Match{Name: idx.Names[i], Score: s, Why: "semantic"}
	}
	SortMatches(matches)
	return DedupeTopK(matches, k), nil
}
