package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/recommend"
	"github.com/kamusis/curricula/internal/skills"
)

var (
	flagSkillsMax       int
	flagSkillsMinFreq   int
	flagSkillsNearest   int
	flagSkillsTitles    int
	flagSkillsExact     bool
	flagSkillsMaxWords  int
	flagSkillsVacancies bool
)

var skillsCmd = &cobra.Command{
	Use:   "skills <profession...>",
	Short: "Extract the key skills of a profession from similar vacancies",
	Long: `Find the vacancy categories and vacancies closest to the profession,
merge near-duplicate skill tags of those vacancies, and list the most
frequent ones.

Examples:
  curricula skills аналитик данных
  curricula skills --exact --min-frequency 1 devops engineer`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSkills,
}

func init() {
	f := skillsCmd.Flags()
	f.IntVar(&flagSkillsMax, "max", 0, "Maximum number of skills (default from config)")
	f.IntVar(&flagSkillsMinFreq, "min-frequency", 0, "Minimum number of occurrences (default from config)")
	f.IntVar(&flagSkillsNearest, "nearest-vacancies", 0, "Vacancies to collect skills from (default from config)")
	f.IntVar(&flagSkillsTitles, "nearest-titles", 0, "Vacancy categories to search in (default from config)")
	f.BoolVar(&flagSkillsExact, "exact", false, "Merge only identical phrases instead of similar ones")
	f.IntVar(&flagSkillsMaxWords, "max-skill-words", 0, "Drop skill phrases longer than this many words (default from config)")
	f.BoolVar(&flagSkillsVacancies, "vacancies", false, "Also list the vacancies the skills were taken from")
	rootCmd.AddCommand(skillsCmd)
}

func runSkills(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if lightweight(cfg) {
		return fmt.Errorf("key skills need an encoder: %w", domain.ErrLightweightMode)
	}
	cats, err := loadCatalogs(cfg)
	if err != nil {
		return err
	}
	x, cleanup, err := newSkillExtractor(ctx, cfg, cats, false)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, maxWords := skillOverrides(skillOptions(cfg), cfg.Skills.MaxSkillWords, cmd.Flags().Changed)

	query := strings.Join(args, " ")
	engine := recommend.NewEngine(nil, recommend.Catalogs{Vacancies: cats.vacancies}, x, engineOptions(cfg))
	res, err := engine.KeySkills(ctx, query, opts, maxWords)
	if err != nil && !errors.Is(err, domain.ErrEncoderUnavailable) {
		return err
	}

	printSection(fmt.Sprintf("Key skills for %q", query))
	if flagSkillsVacancies {
		best, err := x.BestVacancies(ctx, query, opts.NearestTitles, opts.NearestVacancies)
		if err != nil {
			return err
		}
		printBullet(fmt.Sprintf("Nearest vacancies (%d)", len(best)))
		for _, v := range best {
			fmt.Printf("  %s  %s  [%s]\n", recommend.FormatScore(v.Score), v.Name, v.Parent)
		}
	}
	printSkillClusters(res)
	return nil
}

// skillOverrides applies the flags the user set explicitly, zero included.
func skillOverrides(opts skills.Options, maxWords int, changed func(name string) bool) (skills.Options, int) {
	if changed("max") {
		opts.MaxSkills = flagSkillsMax
	}
	if changed("min-frequency") {
		opts.MinFrequency = flagSkillsMinFreq
	}
	if changed("nearest-vacancies") {
		opts.NearestVacancies = flagSkillsNearest
	}
	if changed("nearest-titles") {
		opts.NearestTitles = flagSkillsTitles
	}
	if flagSkillsExact {
		opts.MergeNearDuplicates = false
	}
	if changed("max-skill-words") {
		maxWords = flagSkillsMaxWords
	}
	return opts, maxWords
}

func printSkillClusters(res skills.Result) {
	counts := make(map[string]int, len(res.Clusters))
	for _, c := range res.Clusters {
		counts[c.Phrase] = c.Count
	}
	printBullet(fmt.Sprintf("Skills (%d clusters)", len(res.Clusters)))
	if res.Status != skills.StatusFound {
		printMiss("", "key skills not available ("+res.Status.String()+")")
		return
	}
	for i, s := range res.Skills {
		if n, ok := counts[s]; ok {
			fmt.Printf("  %2d. %s (%d)\n", i+1, s, n)
		} else {
			fmt.Printf("  %2d. %s\n", i+1, s)
		}
	}
}
