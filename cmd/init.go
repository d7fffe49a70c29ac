package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/importer"
)

var (
	flagInitImportData   []string
	flagInitImportModels []string
	flagInitTOML         bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.curricula with a default config and install catalogs and models",
	Long: `Initialize ~/.curricula/: write curricula.yaml (or curricula.toml) and a
.env template, create the data, artifacts and models directories, and
optionally copy catalogs and model directories into them.

Files already installed are never overwritten. A differing incoming file is
stored next to the installed one as <name>.incoming-<source>.<ext>.

Examples:
  curricula init
  curricula init --import-data ./datasets --import-models ./onnx-models`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringSliceVar(&flagInitImportData, "import-data", nil, "Catalog files or directories to copy into the data directory")
	initCmd.Flags().StringSliceVar(&flagInitImportModels, "import-models", nil, "Model directories to copy into the models directory")
	initCmd.Flags().BoolVar(&flagInitTOML, "toml", false, "Write curricula.toml instead of curricula.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.curricula ───────────────────────────────────────────────
	home, err := config.HomeDir()
	if err != nil {
		return err
	}
	cfgPath := flagConfig
	if cfgPath == "" {
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
		if flagInitTOML {
			cfgPath = strings.TrimSuffix(cfgPath, filepath.Ext(cfgPath)) + ".toml"
		}
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", home, err)
	}
	printOK("", fmt.Sprintf("curricula directory ready: %s", home))

	// ── 2. Write config if missing ────────────────────────────────────────────
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}

	// ── 3. Load final config and create directories ──────────────────────────
	flagConfig = cfgPath
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, dir := range []string{cfg.Paths.Data, cfg.Paths.Artifacts, cfg.Models.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	printOK("", fmt.Sprintf("Data directory: %s", cfg.Paths.Data))
	printOK("", fmt.Sprintf("Models directory: %s", cfg.Models.Dir))

	// ── 4. Import catalogs and models ─────────────────────────────────────────
	if len(flagInitImportData)+len(flagInitImportModels) > 0 {
		printSection("Import")
		var conflicts []importer.Conflict
		for _, src := range flagInitImportData {
			c, err := importInto(src, cfg.Paths.Data)
			if err != nil {
				return err
			}
			conflicts = append(conflicts, c...)
		}
		for _, src := range flagInitImportModels {
			c, err := importInto(src, cfg.Models.Dir)
			if err != nil {
				return err
			}
			conflicts = append(conflicts, c...)
		}
		if len(conflicts) > 0 {
			fmt.Printf("\n⚠  %d file(s) differ from the installed versions and were kept aside:\n", len(conflicts))
			for _, c := range conflicts {
				fmt.Printf("     - %s  ← differs from %s\n", c.Incoming, c.Installed)
			}
		}
	}

	fmt.Println("\n✓  curricula init complete. Run 'curricula doctor' to verify your environment.")
	return nil
}

func importInto(src, dst string) ([]importer.Conflict, error) {
	src, err := config.ExpandPath(src)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSuffix(filepath.Base(filepath.Clean(src)), filepath.Ext(src))
	res, err := importer.Import(src, dst, label, importer.DefaultExcludes)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", src, err)
	}
	printOK(label, fmt.Sprintf("%d entr(ies) copied, %d unchanged, %d conflict(s)  (%d file(s))",
		len(res.EntriesCopied), len(res.EntriesSkipped), len(res.EntriesConflict), res.Copied+res.Skipped))
	return res.Conflicts, nil
}
