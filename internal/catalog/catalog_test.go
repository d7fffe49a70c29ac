package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/curricula/internal/domain"
)

const subjectsCSV = `id,name,year,level,annotation,sections,outcomes
1,Algorithms,Программа 2021/2022,Бакалавриат,old,s1,o1
1,Algorithms,Программа 2023/2024,Бакалавриат,new,s2,o2
2,Databases,,Магистратура,,s3,
3,Networks,2022/2023,Бакалавриат,ann,sec,out
1,Algorithms,2022/2023,Бакалавриат,mid,s4,o4
4,,2022/2023,Бакалавриат,no name,x,y
`

func subjectOpts() Options {
	return Options{
		IDColumn:        "id",
		NameColumn:      "name",
		DedupeKey:       []string{"id"},
		YearColumn:      "year",
		FullInfoColumns: []string{"annotation", "sections", "outcomes"},
		GroupBy:         "level",
	}
}

func TestRead_DedupeKeepsMostRecentYear(t *testing.T) {
	c, err := Read(strings.NewReader(subjectsCSV), subjectOpts())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, e := range c.Entities {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
	require.Len(t, c.Entities, 3)

	alg, ok := c.Lookup("Algorithms")
	require.True(t, ok)
	assert.Equal(t, "2023/2024", alg.Year)
	assert.Equal(t, "new", alg.Field("annotation"))

	db, ok := c.Lookup("Databases")
	require.True(t, ok)
	assert.Equal(t, NoYear, db.Year)
}

func TestRead_FullInfoKeepsEmptySegments(t *testing.T) {
	c, err := Read(strings.NewReader(subjectsCSV), subjectOpts())
	require.NoError(t, err)

	db, ok := c.Lookup("Databases")
	require.True(t, ok)
	want := "Databases\nАннотация: \nСписок разделов: s3\nСписок планируемых результатов обучения: "
	assert.Equal(t, want, db.FullInfo)
}

func TestRead_GroupedByColumn(t *testing.T) {
	c, err := Read(strings.NewReader(subjectsCSV), subjectOpts())
	require.NoError(t, err)

	assert.Len(t, c.Grouped["Бакалавриат"], 2)
	assert.Len(t, c.Grouped["Магистратура"], 1)
}

func TestRead_MissingColumnIsConfigurationError(t *testing.T) {
	opts := subjectOpts()
	opts.FullInfoColumns = []string{"annotation", "missing"}
	_, err := Read(strings.NewReader(subjectsCSV), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), subjectOpts())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_SemicolonDelimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vacancies.csv")
	data := "id;name;parent;key_skills\n10;Go developer;Developer;Go, SQL\n11;Analyst;Analytics;SQL\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := Load(path, Options{IDColumn: "id", NameColumn: "name", Comma: ';'})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "Go developer", c.Entities[0].FullInfo)
	assert.Equal(t, "Developer", c.Entities[0].Field("parent"))
}

func TestExtractYear(t *testing.T) {
	assert.Equal(t, "2020/2021", ExtractYear("учебный год 2020/2021, осень"))
	assert.Equal(t, NoYear, ExtractYear("2020-2021"))
	assert.Equal(t, NoYear, ExtractYear(""))
}

func TestRead_EmptyInput(t *testing.T) {
	c, err := Read(strings.NewReader(""), subjectOpts())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestRead_StripsByteOrderMark(t *testing.T) {
	c, err := Read(strings.NewReader("\ufeffid,name\n1,Algorithms\n"), Options{IDColumn: "id", NameColumn: "name"})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "1", c.Entities[0].ID)
	assert.Equal(t, "Algorithms", c.Entities[0].Name)
}
