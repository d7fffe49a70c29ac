package subjects

import (
	"math"
	"sort"
)

// Key is what the secondary ordering looks at for one subject.
type Key struct {
	Level   string
	Courses []int
}

// Sort orders items in place: by the position of their level in priority
// (levels not listed go last, by name), then by the first course number, then by the
// number of distinct courses. Items without courses go last in their group.
// Equal items keep their incoming (similarity) order.
func Sort[T any](items []T, key func(T) Key, priority []string) {
	rank := make(map[string]int, len(priority))
	for i, lvl := range priority {
		if _, dup := rank[lvl]; !dup {
			rank[lvl] = i
		}
	}
	levelRank := func(lvl string) int {
		if r, ok := rank[lvl]; ok {
			return r
		}
		return len(priority)
	}

	type sortKey struct {
		level, first, count int
		name                string
	}
	keys := make([]sortKey, len(items))
	for i, it := range items {
		k := key(it)
		sk := sortKey{level: levelRank(k.Level), first: math.MaxInt, count: math.MaxInt, name: k.Level}
		if len(k.Courses) > 0 {
			sk.first = k.Courses[0]
			sk.count = len(k.Courses)
		}
		keys[i] = sk
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.level != kb.level {
			return ka.level < kb.level
		}
		// unlisted levels share a rank; keep each one contiguous
		if ka.name != kb.name {
			return ka.name < kb.name
		}
		if ka.first != kb.first {
			return ka.first < kb.first
		}
		return ka.count < kb.count
	})

	sorted := make([]T, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}

// Group is a run of items sharing a level, in sorted order.
type Group[T any] struct {
	Level string
	Items []T
}

// GroupByLevel splits items, already sorted by Sort, into consecutive level groups.
func GroupByLevel[T any](items []T, level func(T) string) []Group[T] {
	var out []Group[T]
	for _, it := range items {
		lvl := level(it)
		if n := len(out); n > 0 && out[n-1].Level == lvl {
			out[n-1].Items = append(out[n-1].Items, it)
			continue
		}
		out = append(out, Group[T]{Level: lvl, Items: []T{it}})
	}
	return out
}
