package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/domain"
)

var (
	flagIndexKind   string
	flagIndexModel  string
	flagIndexForce  bool
	flagIndexLimit  int
	flagIndexSkills bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the on-disk embedding caches",
	Long: `Compute the embeddings of a catalog with a model and store them under the
artifacts directory. Valid caches are reused unless --force is given.

Examples:
  curricula index
  curricula index --kind vacancies --model rubert-tiny2 --force
  curricula index --skills`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.StringVar(&flagIndexKind, "kind", "", "Catalog to index: subjects or vacancies (default: both)")
	f.StringVar(&flagIndexModel, "model", "", "Embedding model (default: first configured model)")
	f.BoolVar(&flagIndexForce, "force", false, "Rebuild even when a valid cache exists")
	f.IntVar(&flagIndexLimit, "limit", 0, "Index only the first N catalog rows")
	f.BoolVar(&flagIndexSkills, "skills", false, "Also build the vacancy title and name caches of the skill extractor")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cats, err := loadCatalogs(cfg)
	if err != nil {
		return err
	}
	mgr := newManager(cfg, cats, flagIndexLimit)
	defer mgr.Close()
	if mgr.Lightweight() {
		return fmt.Errorf("cannot index: %w", domain.ErrLightweightMode)
	}

	kinds := domain.Kinds()
	if flagIndexKind != "" {
		k, err := domain.ParseKind(flagIndexKind)
		if err != nil {
			return err
		}
		kinds = []domain.Kind{k}
	}
	model := flagIndexModel
	if model == "" {
		model = cfg.DefaultModel()
	}

	printSection(fmt.Sprintf("Index (model %s)", model))
	if flagIndexForce {
		printInfo("", "force: cached embeddings are rebuilt")
	}
	if flagIndexLimit > 0 {
		printInfo("", fmt.Sprintf("limit: first %d catalog rows", flagIndexLimit))
	}
	start := time.Now()
	switchModel := mgr.ChangeModel
	if flagIndexForce {
		switchModel = mgr.RebuildModel
	}
	st, err := switchModel(ctx, model, kinds...)
	if err != nil {
		return err
	}
	for _, k := range kinds {
		idx := st.Index(k)
		if idx.Len() == 0 {
			printWarn(string(k), "no documents with text, nothing indexed")
			continue
		}
		printOK(string(k), fmt.Sprintf("%d rows, dim %d", idx.Len(), idx.Dim))
	}

	if flagIndexSkills {
		x, cleanup, err := newSkillExtractor(ctx, cfg, cats, flagIndexForce)
		if err != nil {
			return err
		}
		cleanup()
		printOK("skills", fmt.Sprintf("%d vacancies (model %s)", x.Len(), cfg.Models.Skills))
	}
	fmt.Printf("\n  Done in %s.\n", time.Since(start).Round(time.Millisecond))
	return nil
}
