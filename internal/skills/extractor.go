// Package skills extracts the key skills of a profession from the tagged
// skill lists of its nearest vacancies.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/observability"
	"github.com/kamusis/curricula/internal/search/index"
)

// DefaultThreshold is the cosine similarity at or above which two skill
// phrases fall into the same cluster.
const DefaultThreshold = 0.9

// Vacancy is one job posting with its tagged skills.
type Vacancy struct {
	ID     string
	Name   string
	Parent string
	Skills []string
}

// Options controls KeySkills.
type Options struct {
	MaxSkills           int
	MinFrequency        int
	NearestVacancies    int
	NearestTitles       int
	MergeNearDuplicates bool
	Threshold           float64
}

// DefaultOptions returns the stock extraction parameters.
func DefaultOptions() Options {
	return Options{
		MaxSkills:           100,
		MinFrequency:        3,
		NearestVacancies:    50,
		NearestTitles:       5,
		MergeNearDuplicates: true,
		Threshold:           DefaultThreshold,
	}
}

// Status tells a found skill list apart from the empty outcomes.
type Status int

const (
	StatusFound Status = iota
	StatusEmptyQuery
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusEmptyQuery:
		return "empty query"
	case StatusNotFound:
		return "not found"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Cluster is a representative phrase and the number of phrases merged into it.
type Cluster struct {
	Phrase string
	Count  int
}

// Result is the outcome of KeySkills. Skills is never nil.
type Result struct {
	Skills   []string
	Clusters []Cluster
	Status   Status
}

// Ranked is a vacancy and its similarity to the query.
type Ranked struct {
	Vacancy
	Score float64
}

// BuildOptions locates the persisted title and vacancy-name embeddings.
// Empty paths keep the embeddings in memory only.
type BuildOptions struct {
	TitlesEmbeddingsPath string
	TitlesNamesPath      string
	NamesEmbeddingsPath  string
	NamesNamesPath       string
	BatchSize            int
	ForceReload          bool
}

// Extractor holds the precomputed title and vacancy-name embeddings. It is
// safe for concurrent use when its encoder is.
type Extractor struct {
	enc       embeddings.Provider
	titles    *index.Index
	names     *index.Index
	vacancies []Vacancy
	byTitle   map[string][]int
}

// Seeder accepts precomputed vectors. embeddings.Memo implements it.
type Seeder interface {
	Seed(texts []string, dim int, flat []float32)
}

// New embeds every distinct vacancy title and every vacancy name. Vacancies
// without a name or title are ignored.
func New(ctx context.Context, vacancies []Vacancy, enc embeddings.Provider, opts BuildOptions) (*Extractor, error) {
	if enc == nil {
		return nil, domain.ErrEncoderUnavailable
	}
	x := &Extractor{enc: enc, byTitle: map[string][]int{}}

	var titleDocs, nameDocs []index.Document
	for _, v := range vacancies {
		v.Name = strings.TrimSpace(v.Name)
		v.Parent = strings.TrimSpace(v.Parent)
		if v.Name == "" || v.Parent == "" {
			continue
		}
		if _, ok := x.byTitle[v.Parent]; !ok {
			titleDocs = append(titleDocs, index.Document{Name: v.Parent, Text: v.Parent})
		}
		x.byTitle[v.Parent] = append(x.byTitle[v.Parent], len(x.vacancies))
		x.vacancies = append(x.vacancies, v)
		nameDocs = append(nameDocs, index.Document{Name: v.Name, Text: v.Name})
	}

	var err error
	if x.titles, err = embedDocs(ctx, enc, titleDocs, "vacancy_titles", opts.TitlesEmbeddingsPath, opts.TitlesNamesPath, opts); err != nil {
		return nil, err
	}
	if x.names, err = embedDocs(ctx, enc, nameDocs, "vacancy_names", opts.NamesEmbeddingsPath, opts.NamesNamesPath, opts); err != nil {
		return nil, err
	}
	if s, ok := enc.(Seeder); ok {
		s.Seed(x.titles.Names, x.titles.Dim, x.titles.Vectors)
		s.Seed(x.names.Names, x.names.Dim, x.names.Vectors)
	}
	slog.Info("skill extractor ready", "titles", x.titles.Len(), "vacancies", len(x.vacancies))
	return x, nil
}

func embedDocs(ctx context.Context, enc embeddings.Provider, docs []index.Document, catalog, embPath, namesPath string, opts BuildOptions) (*index.Index, error) {
	if embPath != "" && namesPath != "" {
		return index.Extract(ctx, enc, enc.ModelID(), docs, index.ExtractOptions{
			Catalog:        catalog,
			EmbeddingsPath: embPath,
			NamesPath:      namesPath,
			ForceReload:    opts.ForceReload,
			BatchSize:      opts.BatchSize,
		})
	}
	if len(docs) == 0 {
		return index.Empty(enc.ModelID()), nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := embeddings.EmbedAll(ctx, enc, texts, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", catalog, err)
	}
	idx := &index.Index{Model: enc.ModelID(), Dim: len(vecs[0])}
	for i, v := range vecs {
		if len(v) != idx.Dim {
			return nil, fmt.Errorf("%w: got %d want %d", index.ErrDimensionChanged, len(v), idx.Dim)
		}
		idx.Vectors = append(idx.Vectors, v...)
		idx.Names = append(idx.Names, docs[i].Name)
	}
	return idx, nil
}

// Len returns the number of usable vacancies.
func (x *Extractor) Len() int { return len(x.vacancies) }

// BestVacancies returns the amount vacancies most similar to query, taken
// from the members of the nearestTitles titles most similar to it.
func (x *Extractor) BestVacancies(ctx context.Context, query string, nearestTitles, amount int) ([]Ranked, error) {
	if strings.TrimSpace(query) == "" || nearestTitles <= 0 || amount <= 0 || x.titles.Len() == 0 {
		return []Ranked{}, nil
	}
	q, err := x.enc.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	titleScores, err := index.CosineAll(q, x.titles)
	if err != nil {
		return nil, err
	}
	top := rankRows(titleScores)
	if len(top) > nearestTitles {
		top = top[:nearestTitles]
	}

	var rows []int
	for _, t := range top {
		rows = append(rows, x.byTitle[x.titles.Names[t]]...)
	}
	sort.Ints(rows)

	out := make([]Ranked, 0, len(rows))
	for _, r := range rows {
		s, err := index.Cosine(q, x.names.Vector(r))
		if err != nil {
			return nil, err
		}
		out = append(out, Ranked{Vacancy: x.vacancies[r], Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > amount {
		out = out[:amount]
	}
	return out, nil
}

// KeySkills returns the most frequent skills among the vacancies nearest to
// query. Near-duplicate phrases are merged when opts.MergeNearDuplicates is
// set; otherwise trimmed phrases are compared exactly, case-sensitively.
// Output is ordered by descending frequency, holds at most opts.MaxSkills
// phrases, and every phrase occurred at least opts.MinFrequency times.
func (x *Extractor) KeySkills(ctx context.Context, query string, opts Options) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{Skills: []string{}, Status: StatusEmptyQuery}, nil
	}
	best, err := x.BestVacancies(ctx, query, opts.NearestTitles, opts.NearestVacancies)
	if err != nil {
		return Result{}, err
	}

	var phrases []string
	for _, v := range best {
		for _, s := range v.Skills {
			if s = CleanPhrase(s); s != "" {
				phrases = append(phrases, s)
			}
		}
	}

	var clusters []Cluster
	if opts.MergeNearDuplicates {
		threshold := opts.Threshold
		if threshold <= 0 {
			threshold = DefaultThreshold
		}
		clusters, err = clusterBySimilarity(ctx, x.enc, phrases, threshold)
		if err != nil {
			return Result{}, err
		}
	} else {
		clusters = clusterExact(phrases)
	}
	observability.ObserveSkillClusters(len(clusters))

	res := Result{
		Skills:   Select(clusters, opts.MaxSkills, opts.MinFrequency),
		Clusters: clusters,
		Status:   StatusFound,
	}
	if len(res.Skills) == 0 {
		res.Status = StatusNotFound
	}
	return res, nil
}

// Select sorts clusters by descending count, in place and stably, and emits
// their phrases until a count falls below minFrequency or maxSkills phrases
// are taken.
func Select(clusters []Cluster, maxSkills, minFrequency int) []string {
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Count > clusters[j].Count })
	out := []string{}
	for _, c := range clusters {
		if c.Count < minFrequency {
			break
		}
		if len(out) >= maxSkills {
			break
		}
		out = append(out, c.Phrase)
	}
	return out
}

func clusterExact(phrases []string) []Cluster {
	var clusters []Cluster
	pos := map[string]int{}
	for _, p := range phrases {
		if i, ok := pos[p]; ok {
			clusters[i].Count++
			continue
		}
		pos[p] = len(clusters)
		clusters = append(clusters, Cluster{Phrase: p, Count: 1})
	}
	return clusters
}

func clusterBySimilarity(ctx context.Context, enc embeddings.Provider, phrases []string, threshold float64) ([]Cluster, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	vecs, err := embedPhrases(ctx, enc, phrases)
	if err != nil {
		return nil, err
	}

	var clusters []Cluster
	var reps [][]float32
	for i, p := range phrases {
		matched := false
		for c, rep := range reps {
			s, err := index.Cosine(vecs[i], rep)
			if err != nil {
				return nil, err
			}
			if s >= threshold {
				clusters[c].Count++
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, Cluster{Phrase: p, Count: 1})
			reps = append(reps, vecs[i])
		}
	}
	return clusters, nil
}

// embedPhrases encodes each distinct phrase once and returns one vector per input.
func embedPhrases(ctx context.Context, enc embeddings.Provider, phrases []string) ([][]float32, error) {
	pos := map[string]int{}
	var uniq []string
	for _, p := range phrases {
		if _, ok := pos[p]; !ok {
			pos[p] = len(uniq)
			uniq = append(uniq, p)
		}
	}
	vecs, err := embeddings.EmbedAll(ctx, enc, uniq, len(uniq))
	if err != nil {
		return nil, fmt.Errorf("embed skills: %w", err)
	}
	out := make([][]float32, len(phrases))
	for i, p := range phrases {
		out[i] = vecs[pos[p]]
	}
	return out, nil
}

// rankRows returns row indices ordered by descending score, ties by index.
func rankRows(scores []float64) []int {
	rows := make([]int, len(scores))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool { return scores[rows[a]] > scores[rows[b]] })
	return rows
}
