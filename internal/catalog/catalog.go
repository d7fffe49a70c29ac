// Package catalog loads a tabular catalog of subjects or vacancies into
// immutable entities ready for embedding.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kamusis/curricula/internal/domain"
)

// NoYear is the sentinel academic year for rows without a parseable year.
const NoYear = "0000/0000"

var yearPattern = regexp.MustCompile(`(\d{4}/\d{4})`)

// DefaultFullInfoLabels are the segment labels placed before each full-info column.
var DefaultFullInfoLabels = []string{
	"Аннотация",
	"Список разделов",
	"Список планируемых результатов обучения",
}

// Options describes how to read one catalog file.
type Options struct {
	// IDColumn and NameColumn are required header names.
	IDColumn   string
	NameColumn string
	// DedupeKey lists the columns forming the deduplication key. The first
	// one is also the primary sort column.
	DedupeKey []string
	// YearColumn holds free text containing an academic year like 2023/2024.
	YearColumn string
	// FullInfoColumns are concatenated after the name with FullInfoLabels.
	// When empty, the full info is the name alone.
	FullInfoColumns []string
	FullInfoLabels  []string
	// GroupBy collects full-info texts per value of this column.
	GroupBy string
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// Entity is one recommendable item.
type Entity struct {
	ID       string
	Name     string
	FullInfo string
	Year     string
	Fields   map[string]string
}

// Field returns the raw value of column name, or "" when absent.
func (e Entity) Field(name string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// Catalog is a loaded, deduplicated catalog snapshot. Grouped holds the
// full-info texts per value of the GroupBy column.
type Catalog struct {
	Entities []Entity
	Grouped  map[string][]string
}

// GroupSize returns how many entities share value in the GroupBy column.
func (c *Catalog) GroupSize(value string) int {
	if c == nil {
		return 0
	}
	return len(c.Grouped[value])
}

// Len returns the number of entities.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entities)
}

// Lookup returns the first entity named name.
func (c *Catalog) Lookup(name string) (Entity, bool) {
	if c == nil {
		return Entity{}, false
	}
	for _, e := range c.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// Load reads the catalog at path.
func Load(path string, opts Options) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: catalog file not found: %s", domain.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: cannot open catalog %s: %v", domain.ErrConfiguration, path, err)
	}
	defer f.Close()

	c, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	slog.Debug("catalog loaded", "path", path, "entities", len(c.Entities))
	return c, nil
}

// Read parses a catalog from r.
func Read(r io.Reader, opts Options) (*Catalog, error) {
	if opts.NameColumn == "" {
		return nil, fmt.Errorf("%w: name column is required", domain.ErrConfiguration)
	}

	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Catalog{Grouped: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("%w: cannot read header: %v", domain.ErrConfiguration, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	cols := map[string]int{}
	for i, h := range header {
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	required := []string{opts.NameColumn}
	if opts.IDColumn != "" {
		required = append(required, opts.IDColumn)
	}
	required = append(required, opts.DedupeKey...)
	required = append(required, opts.FullInfoColumns...)
	if opts.YearColumn != "" {
		required = append(required, opts.YearColumn)
	}
	if opts.GroupBy != "" {
		required = append(required, opts.GroupBy)
	}
	for _, col := range required {
		if _, ok := cols[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrConfiguration, col)
		}
	}

	var entities []Entity
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Debug("catalog row skipped", "line", line, "err", err)
			continue
		}

		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				fields[h] = clean(rec[i])
			} else {
				fields[h] = ""
			}
		}

		name := fields[opts.NameColumn]
		if name == "" {
			slog.Debug("catalog row without name skipped", "line", line)
			continue
		}

		e := Entity{
			ID:     fields[opts.IDColumn],
			Name:   name,
			Year:   NoYear,
			Fields: fields,
		}
		if opts.YearColumn != "" {
			e.Year = ExtractYear(fields[opts.YearColumn])
		}
		entities = append(entities, e)
	}

	if len(opts.DedupeKey) > 0 {
		entities = dedupe(entities, opts.DedupeKey)
	}

	labels := opts.FullInfoLabels
	if len(labels) == 0 {
		labels = DefaultFullInfoLabels
	}
	grouped := map[string][]string{}
	for i := range entities {
		entities[i].FullInfo = FullInfo(entities[i], opts.FullInfoColumns, labels)
		if opts.GroupBy != "" {
			key := entities[i].Field(opts.GroupBy)
			grouped[key] = append(grouped[key], entities[i].FullInfo)
		}
	}

	return &Catalog{Entities: entities, Grouped: grouped}, nil
}

// ExtractYear returns the first NNNN/NNNN token in s, or NoYear.
func ExtractYear(s string) string {
	if m := yearPattern.FindString(s); m != "" {
		return m
	}
	return NoYear
}

// FullInfo builds the embedding text of e: the name followed by one labeled
// segment per column. Empty values keep their segment.
func FullInfo(e Entity, columns, labels []string) string {
	if len(columns) == 0 {
		return e.Name
	}
	var b strings.Builder
	b.WriteString(e.Name)
	for i, col := range columns {
		label := col
		if i < len(labels) && labels[i] != "" {
			label = labels[i]
		}
		b.WriteString("\n")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(e.Field(col))
	}
	return b.String()
}

// dedupe sorts by (key[0] asc, year desc) and keeps the first row per
// composite key, so the most recent record wins.
func dedupe(entities []Entity, key []string) []Entity {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i].Field(key[0]), entities[j].Field(key[0])
		if a != b {
			return a < b
		}
		return entities[i].Year > entities[j].Year
	})

	seen := make(map[string]struct{}, len(entities))
	out := entities[:0]
	for _, e := range entities {
		parts := make([]string, len(key))
		for i, k := range key {
			parts[i] = e.Field(k)
		}
		k := strings.Join(parts, "\x1f")
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

func clean(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	switch strings.ToLower(s) {
	case "nan", "null", "none":
		return ""
	}
	return s
}
