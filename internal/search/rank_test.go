package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/curricula/internal/catalog"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings/embeddingstest"
	"github.com/kamusis/curricula/internal/search/index"
)

// unit returns a 2D unit vector whose cosine with (1, 0) is c.
func unit(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func scenarioIndex() *index.Index {
	var vecs []float32
	for _, c := range []float64{0.9, 0.95, 0.5} {
		vecs = append(vecs, unit(c)...)
	}
	return &index.Index{Model: "m", Dim: 2, Vectors: vecs, Names: []string{"A", "A", "B"}}
}

func TestRankTopK_DropsLowerDuplicate(t *testing.T) {
	fake := embeddingstest.New("m", 2).Set("query", 1, 0)

	got, err := RankTopK(context.Background(), "query", scenarioIndex(), fake, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Name)
	assert.InDelta(t, 0.95, got[0].Score, 1e-6)
	assert.Equal(t, "B", got[1].Name)
	assert.InDelta(t, 0.5, got[1].Score, 1e-6)
	assert.Equal(t, 1, fake.Calls())
}

func TestRankTopK_LengthIsMinOfKAndDistinct(t *testing.T) {
	fake := embeddingstest.New("m", 2).Set("q", 1, 0)
	idx := scenarioIndex()

	for k, want := range map[int]int{1: 1, 2: 2, 3: 2, 10: 2} {
		got, err := RankTopK(context.Background(), "q", idx, fake, k)
		require.NoError(t, err)
		assert.Len(t, got, want, "k=%d", k)

		seen := map[string]bool{}
		for i, m := range got {
			assert.False(t, seen[m.Name], "name %s repeated", m.Name)
			seen[m.Name] = true
			if i > 0 {
				assert.LessOrEqual(t, m.Score, got[i-1].Score)
			}
		}
	}
}

func TestRankTopK_TiesKeepIndexOrder(t *testing.T) {
	idx := &index.Index{Dim: 2, Vectors: []float32{1, 0, 1, 0, 1, 0}, Names: []string{"x", "y", "z"}}
	got, err := RankVector([]float32{1, 0}, idx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestRankTopK_EmptyInputs(t *testing.T) {
	fake := embeddingstest.New("m", 2)

	got, err := RankTopK(context.Background(), "   ", scenarioIndex(), fake, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = RankTopK(context.Background(), "q", index.Empty("m"), fake, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, fake.Calls())
}

func TestRankTopK_NoEncoder(t *testing.T) {
	_, err := RankTopK(context.Background(), "q", scenarioIndex(), nil, 5)
	assert.ErrorIs(t, err, domain.ErrEncoderUnavailable)
}

func TestKeywordSearch(t *testing.T) {
	entities := []catalog.Entity{
		{Name: "Machine Learning", FullInfo: "Machine Learning\nАннотация: python models"},
		{Name: "Python Basics", FullInfo: "Python Basics\nАннотация: intro"},
		{Name: "Databases", FullInfo: "Databases\nАннотация: SQL"},
	}

	got := KeywordSearch(entities, "python", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Python Basics", got[0].Name)
	assert.Equal(t, "Machine Learning", got[1].Name)

	assert.Empty(t, KeywordSearch(entities, "python sql", 10))
	assert.Empty(t, KeywordSearch(entities, "  ", 10))
	assert.Len(t, KeywordSearch(entities, "a", 1), 1)
}
