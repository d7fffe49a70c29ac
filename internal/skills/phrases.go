package skills

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kamusis/curricula/internal/catalog"
)

var trailingPunct = regexp.MustCompile(`[.,;:\s]+$`)

// CleanPhrase trims p and strips trailing punctuation.
func CleanPhrase(p string) string {
	return trailingPunct.ReplaceAllString(strings.TrimSpace(p), "")
}

// FilterPhrases prepares skill phrases for display: it cleans them with
// CleanPhrase, and drops empty phrases, "none", repeats and phrases longer
// than maxWords words. maxWords <= 0 disables the length check.
func FilterPhrases(phrases []string, maxWords int) []string {
	out := make([]string, 0, len(phrases))
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		p = CleanPhrase(p)
		if p == "" || strings.EqualFold(p, "none") {
			continue
		}
		if maxWords > 0 && len(strings.Fields(p)) > maxWords {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Split cuts a tagged skill list on sep, NFC-normalizes and trims each part,
// and drops empty parts and "none".
func Split(s, sep string) []string {
	if sep == "" {
		sep = ","
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(norm.NFC.String(part))
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		out = append(out, part)
	}
	return out
}

// CapitalizeFirst upper-cases the first letter of s.
func CapitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// FromEntities builds vacancies from catalog entities using the parent and
// key-skills columns.
func FromEntities(entities []catalog.Entity, parentColumn, skillsColumn, sep string) []Vacancy {
	out := make([]Vacancy, 0, len(entities))
	for _, e := range entities {
		out = append(out, Vacancy{
			ID:     e.ID,
			Name:   e.Name,
			Parent: e.Field(parentColumn),
			Skills: Split(e.Field(skillsColumn), sep),
		})
	}
	return out
}
