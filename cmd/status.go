package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/search/index"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the embedding caches of every catalog and model",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// artifactSet is one logical catalog whose caches are listed.
type artifactSet struct {
	name   string
	models []string
}

func artifactSets(cfg *config.Config) []artifactSet {
	var sets []artifactSet
	for _, k := range domain.Kinds() {
		sets = append(sets, artifactSet{name: string(k), models: cfg.Models.Catalog})
	}
	skillModels := []string{cfg.Models.Skills}
	sets = append(sets,
		artifactSet{name: "vacancy_titles", models: skillModels},
		artifactSet{name: "vacancy_names", models: skillModels},
	)
	return sets
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printSection("Catalogs")
	for _, c := range []struct{ name, path string }{
		{"subjects", cfg.Paths.Subjects},
		{"vacancies", cfg.Paths.Vacancies},
		{"grades", cfg.Paths.Grades},
	} {
		switch {
		case c.path == "":
			printSkip(c.name, "not configured")
		case fileExists(c.path):
			printOK(c.name, c.path)
		default:
			printMiss(c.name, "not found: "+c.path)
		}
	}

	printSection("Embedding caches")
	fmt.Printf("  %s\n\n", cfg.Paths.Artifacts)
	var valid, invalid, missing int
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  CATALOG\tMODEL\tROWS\tDIM\tSTATE")
	for _, set := range artifactSets(cfg) {
		embBase, namesBase := cfg.ArtifactPaths(set.name)
		for _, model := range set.models {
			emb := index.WithModelSuffix(embBase, model)
			names := index.WithModelSuffix(namesBase, model)
			if !index.Exists(emb, names) {
				missing++
				fmt.Fprintf(w, "  %s\t%s\t-\t-\tmissing\n", set.name, model)
				continue
			}
			idx, err := index.Load(emb, names)
			if err != nil {
				invalid++
				state := "unreadable"
				if errors.Is(err, domain.ErrCacheInvalid) {
					state = "invalid (rebuilt on next use)"
				}
				fmt.Fprintf(w, "  %s\t%s\t-\t-\t%s\n", set.name, model, state)
				continue
			}
			valid++
			fmt.Fprintf(w, "  %s\t%s\t%d\t%d\tvalid\n", set.name, model, idx.Len(), idx.Dim)
		}
	}
	_ = w.Flush()

	fmt.Printf("\n  %d valid / %d invalid / %d missing\n", valid, invalid, missing)
	if missing > 0 {
		fmt.Println("  Run 'curricula index' to build missing caches.")
	}
	return nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
