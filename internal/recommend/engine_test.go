package recommend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/curricula/internal/catalog"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/embeddings/embeddingstest"
	"github.com/kamusis/curricula/internal/manager"
	"github.com/kamusis/curricula/internal/search/index"
	"github.com/kamusis/curricula/internal/skills"
	"github.com/kamusis/curricula/internal/subjects"
)

const query = "алгебра"

const subjectsCSV = `id,name,level,course_info,department
1,Линейная алгебра,Бакалавриат,"Бакалавриат, 2 курс; Бакалавриат, 3 курс",Кафедра алгебры
2,Высшая математика,Бакалавриат,"Бакалавриат, 1 курс",
3,Теория групп,Магистратура,"Магистратура, 1 курс",Кафедра алгебры
4,Дискретная математика,nan,,Кафедра ДМ
`

const vacanciesCSV = `id,name,parent,key_skills
10,Аналитик данных,Аналитика,"SQL, Python, очень длинный навык из пяти слов"
11,Разработчик,Разработка,"Go, SQL"
`

const gradesCSV = `id,grade_2023,mean_2023
1,4.567,4.1
`

func newFake(model string) *embeddingstest.Fake {
	return embeddingstest.New(model, 3).
		Set(query, 1, 0, 0).
		Set("Линейная алгебра", 1, 0.1, 0).
		Set("Высшая математика", 0.8, 0.6, 0).
		Set("Теория групп", 1, 0, 0.05).
		Set("Дискретная математика", 0.9, 0.3, 0).
		Set("Призрак", 0, 0, 1).
		Set("Аналитик данных", 1, 0, 0).
		Set("Разработчик", 0, 1, 0).
		Set("Аналитика", 1, 0, 0).
		Set("Разработка", 0, 1, 0).
		Set("SQL", 0, 0, 1).
		Set("Python", 0, 1, 1).
		Set("Go", 1, 1, 0).
		Set("очень длинный навык из пяти слов", 1, 0, 1)
}

func readCatalog(t *testing.T, body string, opts catalog.Options) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Read(strings.NewReader(body), opts)
	require.NoError(t, err)
	return c
}

func docs(c *catalog.Catalog, extra ...string) []index.Document {
	out := make([]index.Document, 0, c.Len()+len(extra))
	for _, e := range c.Entities {
		out = append(out, index.Document{Name: e.Name, Text: e.FullInfo})
	}
	for _, name := range extra {
		out = append(out, index.Document{Name: name, Text: name})
	}
	return out
}

type fixture struct {
	engine *Engine
	mgr    *manager.Manager
}

func newFixture(t *testing.T, withSkills bool) fixture {
	t.Helper()
	dir := t.TempDir()
	subj := readCatalog(t, subjectsCSV, catalog.Options{IDColumn: "id", NameColumn: "name"})
	vac := readCatalog(t, vacanciesCSV, catalog.Options{IDColumn: "id", NameColumn: "name"})
	grades := readCatalog(t, gradesCSV, catalog.Options{IDColumn: "id", NameColumn: "id"})

	mgr := manager.New(manager.Options{
		Factory: func(_ context.Context, name string) (embeddings.Provider, error) { return newFake(name), nil },
		Sources: map[domain.Kind]manager.Source{
			domain.KindSubjects: {
				Documents:      docs(subj, "Призрак"),
				EmbeddingsPath: filepath.Join(dir, "subjects_embeddings.safetensors"),
				NamesPath:      filepath.Join(dir, "subjects_names.csv"),
			},
			domain.KindVacancies: {
				Documents:      docs(vac),
				EmbeddingsPath: filepath.Join(dir, "vacancies_embeddings.safetensors"),
				NamesPath:      filepath.Join(dir, "vacancies_names.csv"),
			},
		},
		CacheSize: 2,
	})

	var x *skills.Extractor
	if withSkills {
		var err error
		x, err = skills.New(context.Background(), skills.FromEntities(vac.Entities, "parent", "key_skills", ","), newFake("skills"), skills.BuildOptions{})
		require.NoError(t, err)
	}

	sk := skills.DefaultOptions()
	sk.MinFrequency = 1
	sk.NearestTitles = 1
	e := NewEngine(mgr, Catalogs{Subjects: subj, Vacancies: vac, Grades: grades}, x, Options{
		Subject:        SubjectColumns{Department: "department", Level: "level", CourseInfo: "course_info"},
		Vacancy:        VacancyColumns{Parent: "parent", KeySkills: "key_skills"},
		Grades:         []GradeColumns{{Grade: "grade_2023", Mean: "mean_2023"}},
		LevelPriority:  []string{subjects.Bachelor, subjects.Specialist, subjects.Master, subjects.Postgrad},
		AllLevelsLabel: "Все уровни",
		NoneLevels:     []string{"nan", "none"},
		TopK:           10,
		MaxSkillWords:  3,
		Skills:         sk,
	})
	return fixture{engine: e, mgr: mgr}
}

func recordNames(g SubjectGroup) []string {
	out := make([]string, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Name
	}
	return out
}

func TestRecommend_SubjectsGroupedAndOrdered(t *testing.T) {
	f := newFixture(t, false)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: query, Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Model)
	assert.False(t, resp.Keyword)

	require.Len(t, resp.Subjects, 3)
	assert.Equal(t, subjects.Bachelor, resp.Subjects[0].Level)
	assert.Equal(t, []string{"Высшая математика", "Линейная алгебра"}, recordNames(resp.Subjects[0]))
	assert.Equal(t, subjects.Master, resp.Subjects[1].Level)
	assert.Equal(t, "Все уровни", resp.Subjects[2].Level)
	assert.Equal(t, []string{"Дискретная математика", "Призрак"}, recordNames(resp.Subjects[2]))

	lin := resp.Subjects[0].Records[1]
	assert.Equal(t, "2-3", lin.Courses)
	assert.Equal(t, "Кафедра алгебры", lin.Department)
	assert.Equal(t, []Grade{{Label: "grade_2023", Value: "4.57", Mean: "4.1"}}, lin.Grades)
	assert.True(t, lin.Found)

	hm := resp.Subjects[0].Records[0]
	assert.Equal(t, domain.Placeholder, hm.Department)
	assert.Equal(t, []Grade{{Label: "grade_2023", Value: "-", Mean: "-"}}, hm.Grades)
}

func TestRecommend_LookupMissKeepsItem(t *testing.T) {
	f := newFixture(t, false)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: query, Model: "m1"})
	require.NoError(t, err)

	ghost := resp.Subjects[2].Records[1]
	assert.Equal(t, "Призрак", ghost.Name)
	assert.False(t, ghost.Found)
	assert.Equal(t, domain.Placeholder, ghost.Department)
	assert.Equal(t, domain.Placeholder, ghost.Courses)
	assert.Equal(t, domain.Placeholder, ghost.Format)
}

func TestRecommend_TopK(t *testing.T) {
	f := newFixture(t, false)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: query, Model: "m1", TopK: 2})
	require.NoError(t, err)

	var names []string
	for _, g := range resp.Subjects {
		names = append(names, recordNames(g)...)
	}
	assert.ElementsMatch(t, []string{"Теория групп", "Линейная алгебра"}, names)
}

func TestRecommend_VacanciesWithSkills(t *testing.T) {
	f := newFixture(t, true)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: query, Kind: domain.KindVacancies, Model: "m1"})
	require.NoError(t, err)

	require.Len(t, resp.Vacancies, 2)
	assert.Equal(t, "Аналитик данных", resp.Vacancies[0].Name)
	assert.Equal(t, "Аналитика", resp.Vacancies[0].Parent)
	assert.Equal(t, []string{"SQL", "Python"}, resp.Vacancies[0].KeySkills)
	assert.Equal(t, "1.0000", FormatScore(resp.Vacancies[0].Score))

	assert.Equal(t, skills.StatusFound, resp.Skills.Status)
	assert.Equal(t, []string{"SQL", "Python"}, resp.Skills.Skills)
}

func TestRecommend_KeywordFallbackWithoutModel(t *testing.T) {
	f := newFixture(t, false)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: query})
	require.NoError(t, err)
	assert.True(t, resp.Keyword)
	require.Len(t, resp.Subjects, 1)
	assert.Equal(t, []string{"Линейная алгебра"}, recordNames(resp.Subjects[0]))
}

func TestRecommend_EmptyQuery(t *testing.T) {
	f := newFixture(t, true)
	resp, err := f.engine.Recommend(context.Background(), Request{Query: "  ", Model: "m1"})
	require.NoError(t, err)
	assert.True(t, resp.Empty())
	assert.Equal(t, skills.StatusEmptyQuery, resp.Skills.Status)
	assert.NotNil(t, resp.Skills.Skills)
}

func TestRecommend_UnknownKind(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.engine.Recommend(context.Background(), Request{Query: query, Kind: "courses"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestKeySkills_NoExtractor(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.engine.KeySkills(context.Background(), query, skills.DefaultOptions(), 3)
	assert.ErrorIs(t, err, domain.ErrEncoderUnavailable)
}

func TestKeySkills_NoDuplicatesAfterFilter(t *testing.T) {
	vac := []skills.Vacancy{
		{ID: "1", Name: "Аналитик данных", Parent: "Аналитика", Skills: []string{"SQL"}},
		{ID: "2", Name: "Аналитик BI", Parent: "Аналитика", Skills: []string{"SQL."}},
	}
	x, err := skills.New(context.Background(), vac, newFake("skills"), skills.BuildOptions{})
	require.NoError(t, err)

	opts := skills.DefaultOptions()
	opts.MergeNearDuplicates = false
	opts.MinFrequency = 1
	e := NewEngine(nil, Catalogs{}, x, Options{})
	res, err := e.KeySkills(context.Background(), query, opts, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"SQL"}, res.Skills)
}

func TestFormatGrade(t *testing.T) {
	assert.Equal(t, "4.57", FormatGrade("4.567"))
	assert.Equal(t, "4", FormatGrade("4.0"))
	assert.Equal(t, "3.5", FormatGrade("3,5"))
	assert.Equal(t, "-", FormatGrade("nan"))
	assert.Equal(t, "-", FormatGrade(""))
	assert.Equal(t, "зачёт", FormatGrade("зачёт"))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.9500", FormatScore(0.95))
	assert.Equal(t, "0.1234", FormatScore(0.12344))
}
