package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/recommend"
	"github.com/kamusis/curricula/internal/skills"
)

var (
	flagRecKind     string
	flagRecK        int
	flagRecMaxWords int
	flagRecModel    string
	flagRecKeyword  bool
	flagRecNoSkills bool
	flagRecShowInfo bool
)

var recommendCmd = &cobra.Command{
	Use:     "recommend <query...>",
	Aliases: []string{"rec", "search"},
	Short:   "Rank subjects or vacancies against a job or interest description",
	Long: `Rank the subjects (or vacancies) catalog by embedding similarity to the
query, group subjects by education level, and list the key skills of the
query profession.

Examples:
  curricula recommend аналитик данных
  curricula recommend --kind vacancies --k 5 backend developer
  curricula recommend --model rubert-tiny2 машинное обучение`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecommend,
}

func init() {
	f := recommendCmd.Flags()
	f.StringVar(&flagRecKind, "kind", "subjects", "Catalog to rank: subjects or vacancies")
	f.IntVar(&flagRecK, "k", 0, "Number of results (default from config)")
	f.IntVar(&flagRecMaxWords, "max-skill-words", 0, "Drop skill phrases longer than this many words (default from config)")
	f.StringVar(&flagRecModel, "model", "", "Embedding model to rank with (default: first configured model)")
	f.BoolVar(&flagRecKeyword, "keyword", false, "Use keyword matching instead of embeddings")
	f.BoolVar(&flagRecNoSkills, "no-skills", false, "Skip key skill extraction")
	f.BoolVar(&flagRecShowInfo, "details", false, "Show audience, format and grades of each subject")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseKind(flagRecKind)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := buildApp(ctx, flagRecModel, !flagRecNoSkills && !flagRecKeyword)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	resp, err := a.engine.Recommend(ctx, recommend.Request{
		Query:         query,
		Kind:          kind,
		TopK:          flagRecK,
		MaxSkillWords: flagRecMaxWords,
		Keyword:       flagRecKeyword,
		SkipSkills:    flagRecNoSkills || flagRecKeyword,
	})
	if err != nil {
		return err
	}

	mode := "semantic, model " + resp.Model
	if resp.Keyword {
		mode = "keyword"
	}
	printSection(fmt.Sprintf("%s for %q (%s)", cases.Title(language.Und).String(string(kind)), query, mode))
	if resp.Empty() {
		printMiss("", "no matches")
	}
	switch kind {
	case domain.KindSubjects:
		printSubjects(resp.Subjects)
	case domain.KindVacancies:
		printVacancies(resp.Vacancies)
	}
	if !flagRecNoSkills && !flagRecKeyword {
		printSkills(resp.Skills)
	}
	return nil
}

func printSubjects(groups []recommend.SubjectGroup) {
	for _, g := range groups {
		printBullet(g.Level)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  SCORE\tCOURSE\tSUBJECT\tDEPARTMENT")
		for _, r := range g.Records {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", recommend.FormatScore(r.Score), r.Courses, r.Name, r.Department)
		}
		_ = w.Flush()
		if !flagRecShowInfo {
			continue
		}
		for _, r := range g.Records {
			fmt.Printf("\n  %s\n", r.Name)
			fmt.Printf("    Faculty:   %s\n", r.Faculty)
			fmt.Printf("    Campus:    %s\n", r.Campus)
			fmt.Printf("    Audience:  %s\n", r.Audience)
			fmt.Printf("    Format:    %s\n", r.Format)
			for _, gr := range r.Grades {
				fmt.Printf("    %s: %s (mean %s)\n", gr.Label, gr.Value, gr.Mean)
			}
			if len(r.LLMSkills) > 0 {
				fmt.Printf("    Skills:    %s\n", strings.Join(r.LLMSkills, ", "))
			}
		}
	}
}

func printVacancies(records []recommend.VacancyRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SCORE\tVACANCY\tCATEGORY\tKEY SKILLS")
	for _, r := range records {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", recommend.FormatScore(r.Score), r.Name, r.Parent, strings.Join(r.KeySkills, ", "))
	}
	_ = w.Flush()
}

func printSkills(res skills.Result) {
	printBullet("Key skills")
	switch res.Status {
	case skills.StatusFound:
		for i, s := range res.Skills {
			fmt.Printf("  %2d. %s\n", i+1, s)
		}
	case skills.StatusEmptyQuery:
		printSkip("", "empty query")
	default:
		printMiss("", "key skills not available")
	}
}
