// Package config loads docrag settings from .env, an optional TOML file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderLangChain = "langchain"
	ProviderGemini    = "gemini"
)

// Embedders.
const (
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"
)

// Duration is a time.Duration written as "3s" or "500ms" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Provider        string  `toml:"llm_provider"`
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	OpenAIBaseURL   string  `toml:"openai_base_url"`
	GeminiAPIKey    string  `toml:"gemini_api_key"`
	ChatModel       string  `toml:"chat_model"`
	ChatTemperature float64 `toml:"chat_temperature"`
	VisionModel     string  `toml:"vision_model"`

	Embedder       string `toml:"embedder"`
	EmbeddingModel string `toml:"embedding_model"`
	EmbeddingDim   int    `toml:"embedding_dim"`

	VectorURL  string `toml:"vector_url"`
	GraphURL   string `toml:"graph_url"`
	CatalogURL string `toml:"catalog_url"`
	StaticDir  string `toml:"static_dir"`

	BatchSize     int      `toml:"batch_size"`
	DeepPacing    Duration `toml:"deep_pacing"`
	KGPacing      Duration `toml:"kg_pacing"`
	KGSampleEvery int      `toml:"kg_sample_every"`

	// AnswerLanguage forces the reply language; empty detects it per question.
	AnswerLanguage string `toml:"answer_language"`
	ServerAddr     string `toml:"server_addr"`
	LogLevel       string `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Provider:        ProviderOpenAI,
		ChatModel:       "gpt-3.5-turbo",
		ChatTemperature: 0.2,
		VisionModel:     "gpt-4o-mini",
		Embedder:        EmbedderOpenAI,
		EmbeddingModel:  "text-embedding-3-large",
		EmbeddingDim:    3072,
		VectorURL:       "memory://",
		GraphURL:        "memory://",
		CatalogURL:      "sqlite://docrag.db",
		StaticDir:       "static",
		BatchSize:       50,
		DeepPacing:      Duration(3 * time.Second),
		KGPacing:        Duration(time.Second),
		KGSampleEvery:   2,
		ServerAddr:      ":8080",
		LogLevel:        "info",
	}
}

// Load reads .env from the working directory if present, then the TOML file
// at path when path is not empty, then the environment. It does not validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.overlayEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) overlayEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"LLM_PROVIDER":    &c.Provider,
		"OPENAI_API_KEY":  &c.OpenAIAPIKey,
		"OPENAI_BASE_URL": &c.OpenAIBaseURL,
		"GEMINI_API_KEY":  &c.GeminiAPIKey,
		"CHAT_MODEL":      &c.ChatModel,
		"VISION_MODEL":    &c.VisionModel,
		"EMBEDDER":        &c.Embedder,
		"EMBEDDING_MODEL": &c.EmbeddingModel,
		"VECTOR_URL":      &c.VectorURL,
		"GRAPH_URL":       &c.GraphURL,
		"CATALOG_URL":     &c.CatalogURL,
		"STATIC_DIR":      &c.StaticDir,
		"ANSWER_LANGUAGE": &c.AnswerLanguage,
		"SERVER_ADDR":     &c.ServerAddr,
		"LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"EMBEDDING_DIM":   &c.EmbeddingDim,
		"BATCH_SIZE":      &c.BatchSize,
		"KG_SAMPLE_EVERY": &c.KGSampleEvery,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*Duration{
		"DEEP_PACING": &c.DeepPacing,
		"KG_PACING":   &c.KGPacing,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := dst.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	if v, ok := lookup("CHAT_TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("CHAT_TEMPERATURE: %w", err)
		}
		c.ChatTemperature = f
	}
	return nil
}

// Validate checks that the settings can build a working pipeline.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderOpenAI, ProviderLangChain:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for provider \"gemini\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider))
	}

	switch c.Embedder {
	case EmbedderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai embedder"))
		}
	case EmbedderHash:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDER %q", c.Embedder))
	}

	if c.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be positive"))
	}
	if c.KGSampleEvery <= 0 {
		errs = append(errs, errors.New("KG_SAMPLE_EVERY must be positive"))
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		errs = append(errs, fmt.Errorf("CHAT_TEMPERATURE %.2f is outside [0, 2]", c.ChatTemperature))
	}

	return errors.Join(errs...)
}
