package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/kamusis/curricula/internal/catalog"
	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/embeddings/onnx"
	"github.com/kamusis/curricula/internal/manager"
	"github.com/kamusis/curricula/internal/recommend"
	"github.com/kamusis/curricula/internal/search/index"
	"github.com/kamusis/curricula/internal/skills"
)

// catalogs bundles the loaded catalogs of one run.
type catalogs struct {
	subjects  *catalog.Catalog
	vacancies *catalog.Catalog
	grades    *catalog.Catalog
}

func comma(s string) rune {
	if s == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

func subjectOptions(cfg *config.Config) catalog.Options {
	s := cfg.Catalog.Subjects
	return catalog.Options{
		IDColumn:        s.ID,
		NameColumn:      s.Name,
		DedupeKey:       s.DedupeKey,
		YearColumn:      s.Year,
		FullInfoColumns: s.FullInfo,
		FullInfoLabels:  s.FullInfoLabels,
		GroupBy:         s.GroupBy,
		Comma:           comma(s.Comma),
	}
}

func vacancyOptions(cfg *config.Config) catalog.Options {
	v := cfg.Catalog.Vacancies
	return catalog.Options{
		IDColumn:        v.ID,
		NameColumn:      v.Name,
		DedupeKey:       v.DedupeKey,
		FullInfoColumns: v.FullInfo,
		FullInfoLabels:  v.FullInfoLabels,
		Comma:           comma(v.Comma),
	}
}

func gradesOptions(cfg *config.Config) catalog.Options {
	g := cfg.Catalog.Grades
	return catalog.Options{IDColumn: g.ID, NameColumn: g.ID, Comma: comma(g.Comma)}
}

func loadCatalogs(cfg *config.Config) (*catalogs, error) {
	subj, err := catalog.Load(cfg.Paths.Subjects, subjectOptions(cfg))
	if err != nil {
		return nil, err
	}
	vac, err := catalog.Load(cfg.Paths.Vacancies, vacancyOptions(cfg))
	if err != nil {
		return nil, err
	}
	c := &catalogs{subjects: subj, vacancies: vac}
	if cfg.Paths.Grades != "" {
		if c.grades, err = catalog.Load(cfg.Paths.Grades, gradesOptions(cfg)); err != nil {
			return nil, err
		}
	}
	slog.Debug("catalogs loaded", "subjects", subj.Len(), "vacancies", vac.Len(), "grades", c.grades.Len())
	return c, nil
}

func documents(c *catalog.Catalog) []index.Document {
	out := make([]index.Document, 0, c.Len())
	for _, e := range c.Entities {
		out = append(out, index.Document{Name: e.Name, Text: e.FullInfo})
	}
	return out
}

// lightweight reports whether heavy models must stay unloaded: either the
// config says so or the local encoder runtime cannot start.
func lightweight(cfg *config.Config) bool {
	if cfg.App.Lightweight {
		return true
	}
	if cfg.Encoder.Provider == "onnx" {
		if err := onnx.RuntimeAvailable(cfg.Encoder.ONNXLibrary); err != nil {
			slog.Warn("encoder runtime unavailable, running in lightweight mode", "err", err)
			return true
		}
	}
	return false
}

func newManager(cfg *config.Config, cats *catalogs, limit int) *manager.Manager {
	subjEmb, subjNames := cfg.ArtifactPaths(string(domain.KindSubjects))
	vacEmb, vacNames := cfg.ArtifactPaths(string(domain.KindVacancies))
	return manager.New(manager.Options{
		Factory: embeddings.NewFactory(cfg),
		Sources: map[domain.Kind]manager.Source{
			domain.KindSubjects:  {Documents: documents(cats.subjects), EmbeddingsPath: subjEmb, NamesPath: subjNames},
			domain.KindVacancies: {Documents: documents(cats.vacancies), EmbeddingsPath: vacEmb, NamesPath: vacNames},
		},
		CacheSize:   cfg.Models.CacheSize,
		BatchSize:   cfg.Encoder.BatchSize,
		Normalize:   cfg.Encoder.Normalize,
		Limit:       limit,
		Lightweight: lightweight(cfg),
	})
}

// newPhraseEncoder loads the skills model behind a memo, shared through Redis
// when configured. The returned func releases both.
func newPhraseEncoder(ctx context.Context, cfg *config.Config) (*embeddings.Memo, func(), error) {
	prov, err := embeddings.NewFactory(cfg)(ctx, cfg.Models.Skills)
	if err != nil {
		return nil, nil, err
	}
	var store embeddings.Store
	var redisStore *embeddings.RedisStore
	if cfg.Cache.RedisURL != "" {
		redisStore, err = embeddings.NewRedisStore(cfg.Cache.RedisURL, cfg.Cache.RedisPrefix, time.Duration(cfg.Cache.RedisTTLSeconds)*time.Second)
		if err != nil {
			slog.Warn("redis embedding cache disabled", "err", err)
		} else if err := redisStore.Ping(ctx); err != nil {
			slog.Warn("redis embedding cache unreachable", "err", err)
			_ = redisStore.Close()
			redisStore = nil
		} else {
			store = redisStore
		}
	}
	memo := embeddings.NewMemo(prov, store, cfg.Cache.MemoCapacity, cfg.Encoder.BatchSize)
	cleanup := func() {
		if c, ok := prov.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		if redisStore != nil {
			_ = redisStore.Close()
		}
	}
	return memo, cleanup, nil
}

func newSkillExtractor(ctx context.Context, cfg *config.Config, cats *catalogs, force bool) (*skills.Extractor, func(), error) {
	memo, cleanup, err := newPhraseEncoder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	v := cfg.Catalog.Vacancies
	titlesEmb, titlesNames := cfg.ArtifactPaths("vacancy_titles")
	namesEmb, namesNames := cfg.ArtifactPaths("vacancy_names")
	x, err := skills.New(ctx, skills.FromEntities(cats.vacancies.Entities, v.Parent, v.KeySkills, v.SkillSeparator), memo, skills.BuildOptions{
		TitlesEmbeddingsPath: titlesEmb,
		TitlesNamesPath:      titlesNames,
		NamesEmbeddingsPath:  namesEmb,
		NamesNamesPath:       namesNames,
		BatchSize:            cfg.Encoder.BatchSize,
		ForceReload:          force,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return x, cleanup, nil
}

func skillOptions(cfg *config.Config) skills.Options {
	s := cfg.Skills
	return skills.Options{
		MaxSkills:           s.MaxSkills,
		MinFrequency:        s.MinFrequency,
		NearestVacancies:    s.NearestVacancies,
		NearestTitles:       s.NearestTitles,
		MergeNearDuplicates: s.MergeNearDuplicates,
		Threshold:           s.Threshold,
	}
}

func engineOptions(cfg *config.Config) recommend.Options {
	s := cfg.Catalog.Subjects
	v := cfg.Catalog.Vacancies
	opts := recommend.Options{
		Subject: recommend.SubjectColumns{
			Department: s.Department,
			Faculty:    s.Faculty,
			Campus:     s.Campus,
			Level:      s.Level,
			CourseInfo: s.CourseInfo,
			Audience:   s.Audience,
			Format:     s.Format,
			LLMSkills:  s.LLMSkills,
		},
		Vacancy:        recommend.VacancyColumns{Parent: v.Parent, KeySkills: v.KeySkills, SkillSeparator: v.SkillSeparator},
		LevelPriority:  cfg.Ranking.LevelPriority,
		AllLevelsLabel: cfg.Ranking.AllLevelsLabel,
		NoneLevels:     cfg.Ranking.NoneLevels,
		CourseRanges:   cfg.Ranking.CourseRanges,
		TopK:           cfg.Ranking.TopK,
		MaxSkillWords:  cfg.Skills.MaxSkillWords,
		Skills:         skillOptions(cfg),
	}
	for _, p := range cfg.Catalog.Grades.Pairs {
		opts.Grades = append(opts.Grades, recommend.GradeColumns{Grade: p.Grade, Mean: p.Mean})
	}
	return opts
}

// app is everything a query command needs.
type app struct {
	cfg     *config.Config
	cats    *catalogs
	mgr     *manager.Manager
	engine  *recommend.Engine
	cleanup []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// buildApp loads catalogs, activates model (the default when empty) and,
// when withSkills is set, builds the skill extractor. Missing encoders
// degrade to keyword search and no skills.
func buildApp(ctx context.Context, model string, withSkills bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cats, err := loadCatalogs(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cats: cats, mgr: newManager(cfg, cats, 0)}
	a.cleanup = append(a.cleanup, func() { _ = a.mgr.Close() })

	if model == "" {
		model = cfg.DefaultModel()
	}
	if _, err := a.mgr.ChangeModel(ctx, model); err != nil {
		if !errors.Is(err, domain.ErrLightweightMode) && !errors.Is(err, domain.ErrEncoderUnavailable) {
			a.Close()
			return nil, err
		}
		slog.Info("semantic ranking unavailable, using keyword matching", "model", model, "err", err)
	}

	var x *skills.Extractor
	if withSkills && !a.mgr.Lightweight() {
		ex, cleanup, err := newSkillExtractor(ctx, cfg, cats, false)
		switch {
		case err == nil:
			x = ex
			a.cleanup = append(a.cleanup, cleanup)
		case errors.Is(err, domain.ErrEncoderUnavailable):
			slog.Info("skill extraction unavailable", "err", err)
		default:
			a.Close()
			return nil, fmt.Errorf("cannot build skill extractor: %w", err)
		}
	}

	a.engine = recommend.NewEngine(a.mgr, recommend.Catalogs{
		Subjects:  cats.subjects,
		Vacancies: cats.vacancies,
		Grades:    cats.grades,
	}, x, engineOptions(cfg))
	return a, nil
}
