// Package subjects holds the subject-only ordering rules: course numbers
// parsed from free text, their compact display, and grouping by level.
package subjects

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kamusis/curricula/internal/domain"
)

// Education levels.
const (
	Bachelor   = "Бакалавриат"
	Specialist = "Специалитет"
	Master     = "Магистратура"
	Postgrad   = "Аспирантура"
)

// CourseRange is the inclusive span of valid course numbers of a level.
type CourseRange struct {
	Min int `yaml:"min" toml:"min"`
	Max int `yaml:"max" toml:"max"`
}

// Contains reports whether n is in the range.
func (r CourseRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// DefaultCourseRanges are the permitted course numbers per level.
func DefaultCourseRanges() map[string]CourseRange {
	return map[string]CourseRange{
		Bachelor:   {Min: 1, Max: 4},
		Specialist: {Min: 1, Max: 1},
		Master:     {Min: 1, Max: 2},
		Postgrad:   {Min: 1, Max: 3},
	}
}

var coursePattern = regexp.MustCompile(`([А-ЯЁA-Z][а-яёa-z]+),\s*(\d)\s*курс`)

// ParseCourses extracts course numbers from text of the form
// "<level>, <digit> курс". A pair counts only when the digit lies in its
// level's range. When level is known only pairs of that level are used.
// The result is sorted and distinct.
func ParseCourses(text, level string, ranges map[string]CourseRange) []int {
	seen := map[int]struct{}{}
	for _, m := range coursePattern.FindAllStringSubmatch(text, -1) {
		pairLevel := m[1]
		if _, known := ranges[level]; known && pairLevel != level {
			continue
		}
		r, ok := ranges[pairLevel]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || !r.Contains(n) {
			continue
		}
		seen[n] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// CollapseRange renders sorted course numbers compactly: a contiguous run of
// two or more values becomes "first-last", a single value stays as is, and
// separate runs are joined with ", ". No numbers render as the placeholder.
func CollapseRange(nums []int) string {
	if len(nums) == 0 {
		return domain.Placeholder
	}
	var parts []string
	start, prev := nums[0], nums[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, strconv.Itoa(start)+"-"+strconv.Itoa(prev))
		}
	}
	for _, n := range nums[1:] {
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return strings.Join(parts, ", ")
}
