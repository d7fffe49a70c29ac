package search

import (
	"sort"
	"strings"

	"github.com/kamusis/curricula/internal/catalog"
)

// KeywordSearch matches entities by case-insensitive keywords over name and
// full info. All query tokens must match (AND semantics). Tokens found in the
// name weigh more than tokens found only in the description.
func KeywordSearch(entities []catalog.Entity, query string, limit int) []Match {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []Match{}
	}

	var out []Match
	for _, e := range entities {
		name := strings.ToLower(e.Name)
		blob := name + "\n" + strings.ToLower(e.FullInfo)
		ok := true
		inName := 0
		for _, tok := range tokens {
			if !strings.Contains(blob, tok) {
				ok = false
				break
			}
			if strings.Contains(name, tok) {
				inName++
			}
		}
		if !ok {
			continue
		}
		score := 0.5 + 0.5*float64(inName)/float64(len(tokens))
		out = append(out, Match{Name: e.Name, Score: score, Why: "keyword"})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Name < out[j].Name
		}
		return out[i].Score > out[j].Score
	})
	return DedupeTopK(out, limit)
}

func tokenize(q string) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	parts := strings.Fields(q)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
