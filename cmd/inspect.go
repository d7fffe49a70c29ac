package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/catalog"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/subjects"
)

var flagInspectKind string

var inspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Show the catalog record of a subject or vacancy",
	Long: `Display every column of a catalog record together with the text that is
embedded for it. Subjects also show the parsed course numbers.

An exact name match is tried first; otherwise every record whose name
contains the argument (case-insensitive) is shown.

Example:
  curricula inspect "Линейная алгебра"
  curricula inspect --kind vacancies аналитик`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&flagInspectKind, "kind", "subjects", "Catalog to search: subjects or vacancies")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	kind, err := domain.ParseKind(flagInspectKind)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var cat *catalog.Catalog
	if kind == domain.KindSubjects {
		cat, err = catalog.Load(cfg.Paths.Subjects, subjectOptions(cfg))
	} else {
		cat, err = catalog.Load(cfg.Paths.Vacancies, vacancyOptions(cfg))
	}
	if err != nil {
		return err
	}

	name := strings.Join(args, " ")
	matches := findEntities(cat, name)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s %q not found.\nTip: run 'curricula recommend --keyword %s' to search by keyword.",
			domain.ErrInvalidArgument, kind, name, name)
	}

	for i, e := range matches {
		if i > 0 {
			fmt.Println(strings.Repeat("─", 50))
		}
		printEntity(e)
		if kind == domain.KindSubjects {
			s := cfg.Catalog.Subjects
			nums := subjects.ParseCourses(e.Field(s.CourseInfo), e.Field(s.Level), cfg.Ranking.CourseRanges)
			fmt.Printf("\nCourses:  %s\n", subjects.CollapseRange(nums))
			if line := groupLine(cat, e, s.GroupBy); line != "" {
				fmt.Println(line)
			}
		}
	}
	return nil
}

// findEntities returns the entity named exactly name, or every entity whose
// name contains it.
func findEntities(cat *catalog.Catalog, name string) []catalog.Entity {
	if e, ok := cat.Lookup(name); ok {
		return []catalog.Entity{e}
	}
	lower := strings.ToLower(name)
	var out []catalog.Entity
	for _, e := range cat.Entities {
		if strings.Contains(strings.ToLower(e.Name), lower) {
			out = append(out, e)
		}
	}
	return out
}

// groupLine describes the GroupBy group e belongs to, or "" when the catalog
// is not grouped.
func groupLine(cat *catalog.Catalog, e catalog.Entity, col string) string {
	if col == "" {
		return ""
	}
	v := e.Field(col)
	if v == "" {
		return ""
	}
	return fmt.Sprintf("Group:    %s = %s (%d subjects)", col, v, cat.GroupSize(v))
}

func printEntity(e catalog.Entity) {
	fmt.Printf("📦 %s\n", e.Name)
	fmt.Printf("ID:       %s\n", orDash(e.ID))
	if e.Year != catalog.NoYear {
		fmt.Printf("Year:     %s\n", e.Year)
	}

	cols := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	fmt.Println("\nFields:")
	for _, k := range cols {
		v := strings.ReplaceAll(e.Fields[k], "\n", " ")
		if len([]rune(v)) > 80 {
			v = string([]rune(v)[:80]) + "…"
		}
		fmt.Printf("  %-24s %s\n", k+":", orDash(v))
	}

	fmt.Println("\nEmbedded text:")
	for _, line := range strings.Split(e.FullInfo, "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func orDash(s string) string {
	if s == "" {
		return domain.Placeholder
	}
	return s
}
