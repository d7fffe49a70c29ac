package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/subjects"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CURRICULA_"

// Config is the in-memory representation of ~/.curricula/curricula.yaml.
type Config struct {
	App      AppConfig      `yaml:"app" toml:"app"`
	Paths    PathsConfig    `yaml:"paths" toml:"paths"`
	Catalog  CatalogConfig  `yaml:"catalog" toml:"catalog"`
	Models   ModelsConfig   `yaml:"models" toml:"models"`
	Encoder  EncoderConfig  `yaml:"encoder" toml:"encoder"`
	Ranking  RankingConfig  `yaml:"ranking" toml:"ranking"`
	Skills   SkillsConfig   `yaml:"skills" toml:"skills"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
}

type AppConfig struct {
	Env         string `yaml:"env" toml:"env" env:"APP_ENV"`
	Lightweight bool   `yaml:"lightweight" toml:"lightweight" env:"LIGHTWEIGHT"`
	LogLevel    string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat   string `yaml:"log_format" toml:"log_format" env:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

// PathsConfig locates catalogs and artifacts. Relative paths resolve against Data.
type PathsConfig struct {
	Data      string `yaml:"data" toml:"data" env:"DATA_DIR" validate:"required"`
	Subjects  string `yaml:"subjects" toml:"subjects" env:"SUBJECTS" validate:"required"`
	Vacancies string `yaml:"vacancies" toml:"vacancies" env:"VACANCIES" validate:"required"`
	Grades    string `yaml:"grades,omitempty" toml:"grades,omitempty" env:"GRADES"`
	Artifacts string `yaml:"artifacts" toml:"artifacts" env:"ARTIFACTS_DIR" validate:"required"`
}

type CatalogConfig struct {
	Subjects  SubjectSchema `yaml:"subjects" toml:"subjects"`
	Vacancies VacancySchema `yaml:"vacancies" toml:"vacancies"`
	Grades    GradesSchema  `yaml:"grades" toml:"grades"`
}

// SubjectSchema names the header columns of the subjects catalog.
type SubjectSchema struct {
	Comma          string   `yaml:"comma" toml:"comma"`
	ID             string   `yaml:"id" toml:"id" validate:"required"`
	Name           string   `yaml:"name" toml:"name" validate:"required"`
	Year           string   `yaml:"year,omitempty" toml:"year,omitempty"`
	Campus         string   `yaml:"campus" toml:"campus"`
	Faculty        string   `yaml:"faculty" toml:"faculty"`
	Department     string   `yaml:"department" toml:"department"`
	Level          string   `yaml:"level" toml:"level"`
	CourseInfo     string   `yaml:"course_info" toml:"course_info"`
	Audience       string   `yaml:"audience" toml:"audience"`
	Format         string   `yaml:"format" toml:"format"`
	LLMSkills      string   `yaml:"llm_skills,omitempty" toml:"llm_skills,omitempty"`
	FullInfo       []string `yaml:"full_info" toml:"full_info"`
	FullInfoLabels []string `yaml:"full_info_labels" toml:"full_info_labels"`
	DedupeKey      []string `yaml:"dedupe_key" toml:"dedupe_key"`
	GroupBy        string   `yaml:"group_by,omitempty" toml:"group_by,omitempty"`
}

// VacancySchema names the header columns of the vacancies catalog.
type VacancySchema struct {
	Comma          string   `yaml:"comma" toml:"comma"`
	ID             string   `yaml:"id" toml:"id" validate:"required"`
	Name           string   `yaml:"name" toml:"name" validate:"required"`
	Parent         string   `yaml:"parent" toml:"parent" validate:"required"`
	KeySkills      string   `yaml:"key_skills" toml:"key_skills" validate:"required"`
	SkillSeparator string   `yaml:"skill_separator" toml:"skill_separator"`
	FullInfo       []string `yaml:"full_info,omitempty" toml:"full_info,omitempty"`
	FullInfoLabels []string `yaml:"full_info_labels,omitempty" toml:"full_info_labels,omitempty"`
	DedupeKey      []string `yaml:"dedupe_key,omitempty" toml:"dedupe_key,omitempty"`
}

// GradesSchema describes the optional grading table joined to subjects by ID.
type GradesSchema struct {
	Comma string      `yaml:"comma" toml:"comma"`
	ID    string      `yaml:"id" toml:"id"`
	Pairs []GradePair `yaml:"pairs" toml:"pairs"`
}

// GradePair is a grade column and the column holding its mean.
type GradePair struct {
	Grade string `yaml:"grade" toml:"grade"`
	Mean  string `yaml:"mean,omitempty" toml:"mean,omitempty"`
}

type ModelsConfig struct {
	Dir string `yaml:"dir" toml:"dir" env:"MODELS_DIR" validate:"required"`
	// Catalog lists the models usable for catalog ranking; the first is the default.
	Catalog []string `yaml:"catalog" toml:"catalog" env:"MODELS" envSeparator:"," validate:"min=1,dive,required"`
	// Skills is the model of the skill extractor.
	Skills    string `yaml:"skills" toml:"skills" env:"SKILLS_MODEL" validate:"required"`
	CacheSize int    `yaml:"cache_size" toml:"cache_size" env:"MODEL_CACHE_SIZE" validate:"min=1"`
}

type EncoderConfig struct {
	Provider    string       `yaml:"provider" toml:"provider" env:"ENCODER" validate:"oneof=onnx openai"`
	ONNXLibrary string       `yaml:"onnx_library,omitempty" toml:"onnx_library,omitempty" env:"ONNX_LIBRARY"`
	MaxSeqLen   int          `yaml:"max_seq_len" toml:"max_seq_len" env:"MAX_SEQ_LEN" validate:"min=8"`
	LowerCase   bool         `yaml:"lower_case" toml:"lower_case" env:"LOWER_CASE"`
	Normalize   bool         `yaml:"normalize" toml:"normalize" env:"NORMALIZE"`
	BatchSize   int          `yaml:"batch_size" toml:"batch_size" env:"BATCH_SIZE" validate:"min=1"`
	OpenAI      OpenAIConfig `yaml:"openai" toml:"openai" envPrefix:"OPENAI_"`
}

type OpenAIConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	APIKey            string  `yaml:"api_key,omitempty" toml:"api_key,omitempty" env:"API_KEY"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" env:"RPS" validate:"gte=0"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" toml:"timeout_seconds" env:"TIMEOUT_SECONDS" validate:"gte=0"`
	MaxElapsedSeconds int     `yaml:"max_elapsed_seconds" toml:"max_elapsed_seconds" env:"MAX_ELAPSED_SECONDS" validate:"gte=0"`
}

type RankingConfig struct {
	TopK           int                             `yaml:"top_k" toml:"top_k" env:"TOP_K" validate:"min=1"`
	LevelPriority  []string                        `yaml:"level_priority" toml:"level_priority" validate:"min=1"`
	AllLevelsLabel string                          `yaml:"all_levels_label" toml:"all_levels_label"`
	NoneLevels     []string                        `yaml:"none_levels" toml:"none_levels"`
	CourseRanges   map[string]subjects.CourseRange `yaml:"course_ranges" toml:"course_ranges" validate:"min=1"`
}

type SkillsConfig struct {
	MaxSkills           int     `yaml:"max_skills" toml:"max_skills" env:"MAX_SKILLS" validate:"min=1"`
	MinFrequency        int     `yaml:"min_frequency" toml:"min_frequency" env:"MIN_FREQUENCY" validate:"min=1"`
	NearestVacancies    int     `yaml:"nearest_vacancies" toml:"nearest_vacancies" env:"NEAREST_VACANCIES" validate:"min=1"`
	NearestTitles       int     `yaml:"nearest_titles" toml:"nearest_titles" env:"NEAREST_TITLES" validate:"min=1"`
	MergeNearDuplicates bool    `yaml:"merge_near_duplicates" toml:"merge_near_duplicates" env:"MERGE_NEAR_DUPLICATES"`
	Threshold           float64 `yaml:"threshold" toml:"threshold" env:"SKILL_THRESHOLD" validate:"gt=0,lte=1"`
	MaxSkillWords       int     `yaml:"max_skill_words" toml:"max_skill_words" env:"MAX_SKILL_WORDS" validate:"min=1"`
}

type CacheConfig struct {
	RedisURL        string `yaml:"redis_url,omitempty" toml:"redis_url,omitempty" env:"REDIS_URL"`
	RedisPrefix     string `yaml:"redis_prefix" toml:"redis_prefix" env:"REDIS_PREFIX"`
	RedisTTLSeconds int    `yaml:"redis_ttl_seconds" toml:"redis_ttl_seconds" env:"REDIS_TTL_SECONDS" validate:"gte=0"`
	MemoCapacity    int    `yaml:"memo_capacity" toml:"memo_capacity" env:"MEMO_CAPACITY" validate:"gte=0"`
}

// HomeDir returns the absolute path to ~/.curricula/, or $CURRICULA_HOME when set.
func HomeDir() (string, error) {
	if h := os.Getenv(EnvPrefix + "HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".curricula"), nil
}

// ConfigPath returns the absolute path to ~/.curricula/curricula.yaml.
func ConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "curricula.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the default Config written on first curricula init.
func DefaultConfig() (*Config, error) {
	dir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		App: AppConfig{Env: "dev", LogLevel: "info", LogFormat: "text"},
		Paths: PathsConfig{
			Data:      filepath.Join(dir, "data"),
			Subjects:  "subjects.csv",
			Vacancies: "vacancies.csv",
			Artifacts: "embeddings",
		},
		Catalog: CatalogConfig{
			Subjects: SubjectSchema{
				Comma:          ",",
				ID:             "id",
				Name:           "name",
				Year:           "year",
				Campus:         "campus",
				Faculty:        "faculty",
				Department:     "department",
				Level:          "level",
				CourseInfo:     "course_info",
				Audience:       "audience",
				Format:         "format",
				LLMSkills:      "llm_skills",
				FullInfo:       []string{"annotation", "sections", "outcomes"},
				FullInfoLabels: []string{"Аннотация", "Список разделов", "Список планируемых результатов обучения"},
				DedupeKey:      []string{"id"},
				GroupBy:        "department",
			},
			Vacancies: VacancySchema{
				Comma:          ",",
				ID:             "id",
				Name:           "name",
				Parent:         "parent",
				KeySkills:      "key_skills",
				SkillSeparator: ",",
				FullInfo:       []string{"key_skills"},
				FullInfoLabels: []string{"Ключевые навыки"},
			},
			Grades: GradesSchema{Comma: ",", ID: "id"},
		},
		Models: ModelsConfig{
			Dir:       filepath.Join(dir, "models"),
			Catalog:   []string{"sbert_large_nlu_ru"},
			Skills:    "sbert_large_nlu_ru",
			CacheSize: 2,
		},
		Encoder: EncoderConfig{
			Provider:  "onnx",
			MaxSeqLen: 512,
			LowerCase: true,
			BatchSize: 16,
			OpenAI: OpenAIConfig{
				BaseURL:           "https://api.openai.com/v1",
				RequestsPerSecond: 5,
				TimeoutSeconds:    30,
				MaxElapsedSeconds: 60,
			},
		},
		Ranking: RankingConfig{
			TopK:           10,
			LevelPriority:  []string{subjects.Bachelor, subjects.Specialist, subjects.Master, subjects.Postgrad},
			AllLevelsLabel: "Все уровни",
			NoneLevels:     []string{"nan", "none", "-"},
			CourseRanges:   subjects.DefaultCourseRanges(),
		},
		Skills: SkillsConfig{
			MaxSkills:           100,
			MinFrequency:        3,
			NearestVacancies:    50,
			NearestTitles:       5,
			MergeNearDuplicates: true,
			Threshold:           0.9,
			MaxSkillWords:       4,
		},
		Cache: CacheConfig{
			RedisPrefix:     "curricula:emb",
			RedisTTLSeconds: 7 * 24 * 3600,
		},
	}, nil
}

// Load reads the config at path (the default location when empty), applies
// .env and CURRICULA_* environment overrides, resolves paths and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := LoadEnvFile(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config %s not found (run 'curricula init')", domain.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	if err := Decode(path, data, cfg); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: environment overrides: %v", domain.ErrConfiguration, err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals data into cfg as TOML when path ends in .toml, YAML otherwise.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: invalid TOML in %s: %v", domain.ErrConfiguration, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: invalid YAML in %s: %v", domain.ErrConfiguration, path, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	for _, lvl := range cfg.Ranking.LevelPriority {
		if _, ok := cfg.Ranking.CourseRanges[lvl]; !ok {
			return fmt.Errorf("%w: level %q in level_priority has no course range", domain.ErrConfiguration, lvl)
		}
	}
	for lvl, r := range cfg.Ranking.CourseRanges {
		if r.Min < 1 || r.Max < r.Min || r.Max > 9 {
			return fmt.Errorf("%w: invalid course range for %q: %d-%d", domain.ErrConfiguration, lvl, r.Min, r.Max)
		}
	}
	return nil
}

func (c *Config) resolvePaths() error {
	var err error
	if c.Paths.Data, err = ExpandPath(c.Paths.Data); err != nil {
		return err
	}
	if c.Models.Dir, err = ExpandPath(c.Models.Dir); err != nil {
		return err
	}
	if c.Encoder.ONNXLibrary, err = ExpandPath(c.Encoder.ONNXLibrary); err != nil {
		return err
	}
	for _, p := range []*string{&c.Paths.Subjects, &c.Paths.Vacancies, &c.Paths.Grades, &c.Paths.Artifacts} {
		if *p == "" {
			continue
		}
		if *p, err = ExpandPath(*p); err != nil {
			return err
		}
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Paths.Data, *p)
		}
	}
	return nil
}

// ArtifactPaths returns the base embeddings and names artifact paths of a
// logical catalog such as "subjects" or "vacancy_titles".
func (c *Config) ArtifactPaths(name string) (embeddings, names string) {
	return filepath.Join(c.Paths.Artifacts, name+"_embeddings.safetensors"),
		filepath.Join(c.Paths.Artifacts, name+"_names.csv")
}

// DefaultModel returns the first catalog model.
func (c *Config) DefaultModel() string {
	if len(c.Models.Catalog) == 0 {
		return ""
	}
	return c.Models.Catalog[0]
}

// Save marshals cfg and writes it to path (the default location when empty).
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
