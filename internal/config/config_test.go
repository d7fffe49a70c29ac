package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kamusis/curricula/internal/domain"
)

func TestLoad_MissingFile(t *testing.T) {
	setHome(t)
	_, err := Load("")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSaveLoad_YAMLRoundTrip(t *testing.T) {
	home := setHome(t)
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Ranking.TopK = 7
	if err := Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Ranking.TopK != 7 {
		t.Fatalf("TopK = %d, want 7", got.Ranking.TopK)
	}
	want := filepath.Join(home, "data", "subjects.csv")
	if got.Paths.Subjects != want {
		t.Fatalf("Subjects = %q, want %q", got.Paths.Subjects, want)
	}
	if got.DefaultModel() != "sbert_large_nlu_ru" {
		t.Fatalf("DefaultModel = %q", got.DefaultModel())
	}
}

func TestLoad_TOMLPartialKeepsDefaults(t *testing.T) {
	home := setHome(t)
	p := filepath.Join(home, "curricula.toml")
	body := "[ranking]\ntop_k = 3\n\n[skills]\nthreshold = 0.85\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ranking.TopK != 3 || cfg.Skills.Threshold != 0.85 {
		t.Fatalf("unexpected overrides: top_k=%d threshold=%v", cfg.Ranking.TopK, cfg.Skills.Threshold)
	}
	if cfg.Skills.MaxSkills != 100 {
		t.Fatalf("default max_skills lost: %d", cfg.Skills.MaxSkills)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setHome(t)
	cfg, _ := DefaultConfig()
	if err := Save(cfg, ""); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CURRICULA_TOP_K", "25")
	t.Setenv("CURRICULA_OPENAI_API_KEY", "sk-test")
	t.Setenv("CURRICULA_LIGHTWEIGHT", "true")

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Ranking.TopK != 25 || got.Encoder.OpenAI.APIKey != "sk-test" || !got.App.Lightweight {
		t.Fatalf("env overrides not applied: %+v", got)
	}
}

func TestLoad_DotEnvApplied(t *testing.T) {
	home := setHome(t)
	cfg, _ := DefaultConfig()
	if err := Save(cfg, ""); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("CURRICULA_ENCODER=openai\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("CURRICULA_ENCODER") })

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Encoder.Provider != "openai" {
		t.Fatalf("Provider = %q, want openai", got.Encoder.Provider)
	}
}

func TestValidate(t *testing.T) {
	setHome(t)
	cfg, _ := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad, _ := DefaultConfig()
	bad.Skills.Threshold = 1.5
	if err := Validate(bad); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for threshold, got %v", err)
	}

	missing, _ := DefaultConfig()
	delete(missing.Ranking.CourseRanges, "Магистратура")
	if err := Validate(missing); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing range, got %v", err)
	}

	badRange, _ := DefaultConfig()
	r := badRange.Ranking.CourseRanges["Бакалавриат"]
	r.Max = 0
	badRange.Ranking.CourseRanges["Бакалавриат"] = r
	if err := Validate(badRange); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for bad range, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	p, err := ExpandPath("/abs/path")
	if err != nil || p != "/abs/path" {
		t.Fatalf("ExpandPath(abs) = %q, %v", p, err)
	}
	home, _ := os.UserHomeDir()
	p, err = ExpandPath("~/x")
	if err != nil || p != filepath.Join(home, "x") {
		t.Fatalf("ExpandPath(~) = %q, %v", p, err)
	}
}
