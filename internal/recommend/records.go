package recommend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/skills"
)

// SubjectRecord is one recommended subject with its joined metadata.
// Fields missing from the catalog hold domain.Placeholder.
type SubjectRecord struct {
	ID         string
	Name       string
	Score      float64
	Department string
	Faculty    string
	Campus     string
	Level      string
	CourseInfo string
	Courses    string
	Audience   string
	Format     string
	Grades     []Grade
	LLMSkills  []string
	Found      bool

	courseNums []int
}

// Grade is one grading column and its mean, formatted for display.
type Grade struct {
	Label string
	Value string
	Mean  string
}

// SubjectGroup is a run of subjects sharing a display level.
type SubjectGroup struct {
	Level   string
	Records []SubjectRecord
}

// VacancyRecord is one recommended vacancy.
type VacancyRecord struct {
	ID        string
	Name      string
	Score     float64
	Parent    string
	KeySkills []string
	Found     bool
}

// Response is the outcome of one recommendation request.
type Response struct {
	Kind      domain.Kind
	Model     string
	Keyword   bool
	Subjects  []SubjectGroup
	Vacancies []VacancyRecord
	Skills    skills.Result
}

// Empty reports whether no entity was recommended.
func (r Response) Empty() bool {
	return len(r.Subjects) == 0 && len(r.Vacancies) == 0
}

// FormatScore renders a similarity with four decimals.
func FormatScore(s float64) string {
	return fmt.Sprintf("%.4f", s)
}

// FormatGrade rounds a numeric grade to two decimals. Empty and "none"-like
// values render as the placeholder; other text is kept.
func FormatGrade(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "nan", "none", "null", domain.Placeholder:
		return domain.Placeholder
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return domain.Placeholder
	}
	return s
}
