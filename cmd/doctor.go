package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/embeddings/onnx"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that the config, catalogs, models and encoder runtime are usable.
Run this command when something seems wrong, or before filing a bug report.`,
	RunE: runDoctor,
}

var doctorFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Automatically fix detected issues",
	Long: `Fix detected issues in the data directory.

Currently fixes:
  - Unresolved imports: deletes all *.incoming-* files left by 'curricula init --import'

Run 'curricula doctor' first to see what will be fixed.`,
	RunE: runDoctorFix,
}

func init() {
	doctorCmd.AddCommand(doctorFixCmd)
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorFix(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printSection("curricula doctor fix")
	fmt.Println("\n[ Unresolved imports ]")
	var leftovers []string
	for _, root := range []string{cfg.Paths.Data, cfg.Models.Dir} {
		leftovers = append(leftovers, findIncomingFiles(root)...)
	}
	if len(leftovers) == 0 {
		printOK("", "no incoming files found, nothing to fix")
		return nil
	}

	var failed int
	for _, p := range leftovers {
		if err := os.Remove(p); err != nil {
			printErr("", fmt.Sprintf("cannot delete %s: %v", p, err))
			failed++
		} else {
			printOK("", fmt.Sprintf("deleted %s", p))
		}
	}
	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", failed)
	}
	fmt.Printf("  ✓  %d incoming file(s) removed.\n", len(leftovers))
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("curricula doctor")
	fmt.Println()

	// ── Check 1: config ──────────────────────────────────────────────────────
	fmt.Println("[ curricula.yaml ]")
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath, _ = config.ConfigPath()
	}
	cfg, loadErr := config.Load(flagConfig)
	if loadErr != nil {
		failD("cannot load %s: %v", cfgPath, loadErr)
	} else {
		printOK("", fmt.Sprintf("valid config: %s", cfgPath))
	}
	fmt.Println()
	if loadErr != nil {
		fmt.Println("===================")
		return fmt.Errorf("doctor found issues")
	}

	// ── Check 2: catalogs ────────────────────────────────────────────────────
	fmt.Println("[ Catalogs ]")
	if cats, err := loadCatalogs(cfg); err != nil {
		failD("%v", err)
	} else {
		printOK("subjects", fmt.Sprintf("%d entities", cats.subjects.Len()))
		printOK("vacancies", fmt.Sprintf("%d entities", cats.vacancies.Len()))
		if cats.grades != nil {
			printOK("grades", fmt.Sprintf("%d rows", cats.grades.Len()))
		}
	}
	fmt.Println()

	// ── Check 3: encoder ─────────────────────────────────────────────────────
	fmt.Println("[ Encoder ]")
	switch cfg.Encoder.Provider {
	case "onnx":
		if err := onnx.RuntimeAvailable(cfg.Encoder.ONNXLibrary); err != nil {
			failD("ONNX Runtime unavailable: %v", err)
			fmt.Println("     Set encoder.onnx_library or CURRICULA_ONNX_LIBRARY to libonnxruntime.")
		} else {
			printOK("", "ONNX Runtime loaded")
		}
	case "openai":
		if cfg.Encoder.OpenAI.APIKey == "" {
			failD("CURRICULA_OPENAI_API_KEY is not set")
		} else {
			printOK("", fmt.Sprintf("HTTP encoder at %s", cfg.Encoder.OpenAI.BaseURL))
		}
	}
	if cfg.App.Lightweight {
		printWarn("", "lightweight mode is on: semantic ranking and skills are disabled")
	}
	fmt.Println()

	// ── Check 4: models ──────────────────────────────────────────────────────
	fmt.Println("[ Models ]")
	if cfg.Encoder.Provider == "onnx" {
		models := append([]string{}, cfg.Models.Catalog...)
		if !slices.Contains(models, cfg.Models.Skills) {
			models = append(models, cfg.Models.Skills)
		}
		for _, m := range models {
			dir := filepath.Join(cfg.Models.Dir, m)
			var missing []string
			for _, f := range []string{onnx.ModelFile, onnx.VocabFile} {
				if !fileExists(filepath.Join(dir, f)) {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				failD("[%s] missing %s in %s", m, strings.Join(missing, ", "), dir)
				continue
			}
			printOK(m, dir)
		}
	} else {
		printSkip("", "remote encoder, no local model files")
	}
	fmt.Println()

	// ── Check 5: shared embedding cache ──────────────────────────────────────
	fmt.Println("[ Redis embedding cache ]")
	if cfg.Cache.RedisURL == "" {
		printSkip("", "not configured")
	} else {
		store, err := embeddings.NewRedisStore(cfg.Cache.RedisURL, cfg.Cache.RedisPrefix, 0)
		if err != nil {
			failD("invalid redis_url: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			if err := store.Ping(ctx); err != nil {
				printWarn("", fmt.Sprintf("unreachable, running without it: %v", err))
			} else {
				printOK("", "reachable")
			}
			cancel()
			_ = store.Close()
		}
	}
	fmt.Println()

	// ── Check 6: unresolved imports ──────────────────────────────────────────
	fmt.Println("[ Unresolved imports ]")
	var leftovers []string
	for _, root := range []string{cfg.Paths.Data, cfg.Models.Dir} {
		leftovers = append(leftovers, findIncomingFiles(root)...)
	}
	if len(leftovers) == 0 {
		printOK("", "no incoming files found")
	} else {
		for _, c := range leftovers {
			printWarn("", c)
		}
		fmt.Printf("\n  ⚠  %d incoming file(s) differ from the installed versions.\n", len(leftovers))
		fmt.Println("     Replace the installed files or run 'curricula doctor fix' to drop them.")
		allOK = false
	}
	fmt.Println()

	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. curricula is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

// findIncomingFiles returns files under root whose name contains ".incoming-".
func findIncomingFiles(root string) []string {
	var found []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.Contains(d.Name(), ".incoming-") {
			found = append(found, path)
		}
		return nil
	})
	return found
}
