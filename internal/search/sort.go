package search

import "sort"

// SortMatches sorts matches by score (descending). Ties keep their input order.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// DedupeTopK keeps the first occurrence of each name in sorted matches and
// stops once k names are collected. k <= 0 keeps every distinct name.
func DedupeTopK(sorted []Match, k int) []Match {
	seen := make(map[string]struct{}, len(sorted))
	out := make([]Match, 0, min(max(k, 0), len(sorted)))
	for _, m := range sorted {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m)
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out
}
