// Package recommend joins similarity rankings with catalog metadata and
// skill extraction into display-ready records.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kamusis/curricula/internal/catalog"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/manager"
	"github.com/kamusis/curricula/internal/search"
	"github.com/kamusis/curricula/internal/skills"
	"github.com/kamusis/curricula/internal/subjects"
)

// SubjectColumns names the subject metadata columns.
type SubjectColumns struct {
	Department string
	Faculty    string
	Campus     string
	Level      string
	CourseInfo string
	Audience   string
	Format     string
	LLMSkills  string
}

// VacancyColumns names the vacancy metadata columns.
type VacancyColumns struct {
	Parent         string
	KeySkills      string
	SkillSeparator string
}

// GradeColumns is a grade column of the grades catalog and its mean column.
type GradeColumns struct {
	Grade string
	Mean  string
}

// Options configures an Engine.
type Options struct {
	Subject        SubjectColumns
	Vacancy        VacancyColumns
	Grades         []GradeColumns
	LevelPriority  []string
	AllLevelsLabel string
	NoneLevels     []string
	CourseRanges   map[string]subjects.CourseRange
	TopK           int
	MaxSkillWords  int
	Skills         skills.Options
}

// Catalogs are the loaded catalogs. Grades may be nil.
type Catalogs struct {
	Subjects  *catalog.Catalog
	Vacancies *catalog.Catalog
	Grades    *catalog.Catalog
}

// Request is one recommendation query. Zero values fall back to the engine options.
type Request struct {
	Query         string
	Kind          domain.Kind
	TopK          int
	MaxSkillWords int
	// Model switches the embedding model before ranking when set.
	Model string
	// Keyword forces keyword matching instead of embeddings.
	Keyword    bool
	SkipSkills bool
}

// Engine serves recommendation requests. It is safe for concurrent use.
type Engine struct {
	mgr      *manager.Manager
	cats     Catalogs
	gradesBy map[string]catalog.Entity
	skills   *skills.Extractor
	opts     Options
}

// NewEngine wires the manager, catalogs and optional skill extractor.
func NewEngine(mgr *manager.Manager, cats Catalogs, x *skills.Extractor, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.CourseRanges == nil {
		opts.CourseRanges = subjects.DefaultCourseRanges()
	}
	if opts.Vacancy.SkillSeparator == "" {
		opts.Vacancy.SkillSeparator = ","
	}
	e := &Engine{mgr: mgr, cats: cats, skills: x, opts: opts, gradesBy: map[string]catalog.Entity{}}
	if cats.Grades != nil {
		for _, g := range cats.Grades.Entities {
			if _, dup := e.gradesBy[g.ID]; !dup {
				e.gradesBy[g.ID] = g
			}
		}
	}
	return e
}

// Recommend ranks the requested catalog against the query and extracts the
// key skills of the query profession. An empty query yields an empty response.
func (e *Engine) Recommend(ctx context.Context, req Request) (Response, error) {
	if req.Kind == "" {
		req.Kind = domain.KindSubjects
	}
	if req.Kind != domain.KindSubjects && req.Kind != domain.KindVacancies {
		return Response{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidArgument, req.Kind)
	}
	k := req.TopK
	if k <= 0 {
		k = e.opts.TopK
	}
	maxWords := req.MaxSkillWords
	if maxWords <= 0 {
		maxWords = e.opts.MaxSkillWords
	}

	if req.Model != "" && req.Model != e.mgr.Snapshot().Model {
		if _, err := e.mgr.ChangeModel(ctx, req.Model); err != nil {
			if !errors.Is(err, domain.ErrLightweightMode) {
				return Response{}, err
			}
			slog.Info("model switch unavailable", "model", req.Model)
		}
	}

	snap := e.mgr.Snapshot()
	resp := Response{Kind: req.Kind, Model: snap.Model, Skills: skills.Result{Skills: []string{}, Status: skills.StatusNotFound}}
	if strings.TrimSpace(req.Query) == "" {
		resp.Skills.Status = skills.StatusEmptyQuery
		return resp, nil
	}

	var matches []search.Match
	if req.Keyword || snap.Provider == nil {
		resp.Keyword = true
		matches = search.KeywordSearch(e.entities(req.Kind), req.Query, k)
	} else {
		var err error
		matches, err = search.RankTopK(ctx, req.Query, snap.Index(req.Kind), snap.Provider, k)
		if err != nil {
			return Response{}, err
		}
	}

	switch req.Kind {
	case domain.KindSubjects:
		resp.Subjects = e.subjectGroups(matches, maxWords)
	case domain.KindVacancies:
		resp.Vacancies = e.vacancyRecords(matches, maxWords)
	}

	if !req.SkipSkills && e.skills != nil {
		res, err := e.KeySkills(ctx, req.Query, e.opts.Skills, maxWords)
		if err != nil {
			return Response{}, err
		}
		resp.Skills = res
	}
	return resp, nil
}

// KeySkills extracts the skills of a profession and drops phrases longer
// than maxWords words.
func (e *Engine) KeySkills(ctx context.Context, query string, opts skills.Options, maxWords int) (skills.Result, error) {
	if e.skills == nil {
		return skills.Result{Skills: []string{}, Status: skills.StatusNotFound}, domain.ErrEncoderUnavailable
	}
	res, err := e.skills.KeySkills(ctx, query, opts)
	if err != nil {
		return skills.Result{}, err
	}
	res.Skills = skills.FilterPhrases(res.Skills, maxWords)
	if res.Status == skills.StatusFound && len(res.Skills) == 0 {
		res.Status = skills.StatusNotFound
	}
	return res, nil
}

func (e *Engine) entities(kind domain.Kind) []catalog.Entity {
	c := e.cats.Subjects
	if kind == domain.KindVacancies {
		c = e.cats.Vacancies
	}
	if c == nil {
		return nil
	}
	return c.Entities
}

func (e *Engine) subjectGroups(matches []search.Match, maxWords int) []SubjectGroup {
	records := make([]SubjectRecord, 0, len(matches))
	for _, m := range matches {
		records = append(records, e.subjectRecord(m, maxWords))
	}
	subjects.Sort(records, func(r SubjectRecord) subjects.Key {
		return subjects.Key{Level: r.Level, Courses: r.courseNums}
	}, e.opts.LevelPriority)

	groups := subjects.GroupByLevel(records, func(r SubjectRecord) string { return r.Level })
	out := make([]SubjectGroup, len(groups))
	for i, g := range groups {
		out[i] = SubjectGroup{Level: g.Level, Records: g.Items}
	}
	return out
}

func (e *Engine) subjectRecord(m search.Match, maxWords int) SubjectRecord {
	ent, ok := e.cats.Subjects.Lookup(m.Name)
	if !ok {
		slog.Debug("subject metadata missing", "name", m.Name)
		return SubjectRecord{
			ID: domain.Placeholder, Name: m.Name, Score: m.Score,
			Department: domain.Placeholder, Faculty: domain.Placeholder, Campus: domain.Placeholder,
			Level: e.displayLevel(""), CourseInfo: domain.Placeholder, Courses: domain.Placeholder,
			Audience: domain.Placeholder, Format: domain.Placeholder,
			Grades: e.grades(""), LLMSkills: []string{},
		}
	}

	c := e.opts.Subject
	rawLevel := ent.Field(c.Level)
	nums := subjects.ParseCourses(ent.Field(c.CourseInfo), rawLevel, e.opts.CourseRanges)
	r := SubjectRecord{
		ID:         orPlaceholder(ent.ID),
		Name:       ent.Name,
		Score:      m.Score,
		Department: orPlaceholder(ent.Field(c.Department)),
		Faculty:    orPlaceholder(ent.Field(c.Faculty)),
		Campus:     orPlaceholder(ent.Field(c.Campus)),
		Level:      e.displayLevel(rawLevel),
		CourseInfo: orPlaceholder(ent.Field(c.CourseInfo)),
		Courses:    subjects.CollapseRange(nums),
		Audience:   orPlaceholder(ent.Field(c.Audience)),
		Format:     orPlaceholder(ent.Field(c.Format)),
		Grades:     e.grades(ent.ID),
		LLMSkills:  []string{},
		Found:      true,
		courseNums: nums,
	}
	if c.LLMSkills != "" {
		parts := skills.Split(ent.Field(c.LLMSkills), ";")
		for i := range parts {
			parts[i] = skills.CapitalizeFirst(parts[i])
		}
		r.LLMSkills = skills.FilterPhrases(parts, maxWords)
	}
	return r
}

func (e *Engine) displayLevel(level string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return e.allLevels()
	}
	for _, n := range e.opts.NoneLevels {
		if strings.EqualFold(level, n) {
			return e.allLevels()
		}
	}
	return level
}

func (e *Engine) allLevels() string {
	if e.opts.AllLevelsLabel == "" {
		return domain.Placeholder
	}
	return e.opts.AllLevelsLabel
}

func (e *Engine) grades(id string) []Grade {
	if len(e.opts.Grades) == 0 {
		return nil
	}
	g, ok := e.gradesBy[id]
	out := make([]Grade, len(e.opts.Grades))
	for i, cols := range e.opts.Grades {
		out[i] = Grade{Label: cols.Grade, Value: domain.Placeholder, Mean: domain.Placeholder}
		if !ok {
			continue
		}
		out[i].Value = FormatGrade(g.Field(cols.Grade))
		if cols.Mean != "" {
			out[i].Mean = FormatGrade(g.Field(cols.Mean))
		}
	}
	return out
}

func (e *Engine) vacancyRecords(matches []search.Match, maxWords int) []VacancyRecord {
	out := make([]VacancyRecord, 0, len(matches))
	for _, m := range matches {
		ent, ok := e.cats.Vacancies.Lookup(m.Name)
		if !ok {
			out = append(out, VacancyRecord{
				ID: domain.Placeholder, Name: m.Name, Score: m.Score,
				Parent: domain.Placeholder, KeySkills: []string{domain.Placeholder},
			})
			continue
		}
		c := e.opts.Vacancy
		out = append(out, VacancyRecord{
			ID:        orPlaceholder(ent.ID),
			Name:      ent.Name,
			Score:     m.Score,
			Parent:    orPlaceholder(ent.Field(c.Parent)),
			KeySkills: skills.FilterPhrases(skills.Split(ent.Field(c.KeySkills), c.SkillSeparator), maxWords),
			Found:     true,
		})
	}
	return out
}
