package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"docqa/internal/confidence"
	"docqa/internal/prompt"
	"docqa/internal/retrieval"
	"docqa/internal/vectorstore"
)

// RetrievalConfig controls search depth and the confidence annotation.
type RetrievalConfig struct {
	K              int                   `yaml:"k"`
	Sentinel       string                `yaml:"sentinel"`
	Thresholds     confidence.Thresholds `yaml:"thresholds"`
	ScorePrecision int                   `yaml:"score_precision"`
	ModerateNote   string                `yaml:"moderate_note,omitempty"`
	LowNote        string                `yaml:"low_note,omitempty"`
}

// PromptConfig selects the guardrail rule set.
type PromptConfig struct {
	RuleSet      string `yaml:"rule_set"`
	TemplateFile string `yaml:"template_file,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	Size              int    `yaml:"size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Metric string        `yaml:"metric"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SQLiteConfig locates the persistent index file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeneratorConfig selects the answer model provider.
type GeneratorConfig struct {
	Type        string                 `yaml:"type"`
	Temperature float64                `yaml:"temperature"`
	TimeoutSecs int                    `yaml:"timeout_secs"`
	OpenAI      *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaConfig          `yaml:"ollama,omitempty"`
}

// OpenAIGeneratorConfig configures OpenRouter or OpenAI chat completions.
type OpenAIGeneratorConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// OllamaConfig configures a local Ollama server.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// IngestConfig controls document ingestion.
type IngestConfig struct {
	DataDir     string `yaml:"data_dir"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./docqa.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docqa.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns a fresh copy of the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cc := confidence.DefaultConfig()
	cfg := &AppConfig{
		Retrieval: RetrievalConfig{
			K:              retrieval.DefaultConfig().K,
			Sentinel:       retrieval.DefaultSentinel,
			Thresholds:     cc.Thresholds,
			ScorePrecision: cc.Precision,
		},
		Prompt:      PromptConfig{RuleSet: prompt.GuardrailV2},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "window", Size: 1000, Overlap: 200, SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "sqlite", Metric: string(vectorstore.MetricL2), SQLite: &SQLiteConfig{Path: filepath.Join(".docqa", "index.db")}},
		Generator:   GeneratorConfig{Type: "openrouter", TimeoutSecs: 60},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Ingest:      IngestConfig{DataDir: "data", Concurrency: 4, BatchSize: 64},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
		Server:      ServerConfig{Addr: ":8080"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = retrieval.DefaultConfig().K
	}
	if cfg.Retrieval.Sentinel == "" {
		cfg.Retrieval.Sentinel = retrieval.DefaultSentinel
	}
	if cfg.Prompt.RuleSet == "" {
		cfg.Prompt.RuleSet = prompt.GuardrailV2
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	switch cfg.VectorStore.Type {
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = filepath.Join(".docqa", "index.db")
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "docqa"
		}
	}
	switch cfg.Generator.Type {
	case "openrouter", "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		g := cfg.Generator.OpenAI
		if cfg.Generator.Type == "openrouter" {
			g.BaseURL = orDefault(g.BaseURL, "https://openrouter.ai/api/v1")
			g.APIKeyEnv = orDefault(g.APIKeyEnv, "OPENROUTER_API_KEY")
			g.Model = orDefault(g.Model, "openai/gpt-3.5-turbo")
		} else {
			g.BaseURL = orDefault(g.BaseURL, "https://api.openai.com/v1")
			g.APIKeyEnv = orDefault(g.APIKeyEnv, "OPENAI_API_KEY")
			g.Model = orDefault(g.Model, "gpt-3.5-turbo")
		}
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		cfg.Generator.Ollama.URL = orDefault(cfg.Generator.Ollama.URL, "http://localhost:11434")
		cfg.Generator.Ollama.Model = orDefault(cfg.Generator.Ollama.Model, "llama3")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ApplyEnv overrides selected settings from DOCQA_* environment variables.
func (c *AppConfig) ApplyEnv() error {
	if v := os.Getenv("DOCQA_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCQA_K: %w", err)
		}
		c.Retrieval.K = k
	}
	for name, dst := range map[string]*float64{
		"DOCQA_HIGH_THRESHOLD": &c.Retrieval.Thresholds.High,
		"DOCQA_LOW_THRESHOLD":  &c.Retrieval.Thresholds.Low,
	} {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = f
		}
	}
	if v := os.Getenv("DOCQA_RULE_SET"); v != "" {
		c.Prompt.RuleSet = v
	}
	if v := os.Getenv("DOCQA_GENERATOR"); v != "" {
		c.Generator.Type = v
		applyConfigDefaults(c)
	}
	if v := os.Getenv("DOCQA_MODEL"); v != "" {
		switch c.Generator.Type {
		case "ollama":
			c.Generator.Ollama.Model = v
		case "openrouter", "openai":
			c.Generator.OpenAI.Model = v
		}
	}
	if v := os.Getenv("DOCQA_INDEX_PATH"); v != "" && c.VectorStore.SQLite != nil {
		c.VectorStore.SQLite.Path = v
	}
	if v := os.Getenv("DOCQA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	var errs []string
	if c.Retrieval.K <= 0 {
		errs = append(errs, fmt.Sprintf("retrieval.k must be positive, got %d", c.Retrieval.K))
	}
	if err := c.Confidence().Validate(); err != nil {
		errs = append(errs, "retrieval: "+err.Error())
	}
	if _, err := prompt.Lookup(c.Prompt.RuleSet); err != nil {
		errs = append(errs, "prompt: "+err.Error())
	}
	if _, err := vectorstore.ParseMetric(c.VectorStore.Metric); err != nil {
		errs = append(errs, "vector_store: "+err.Error())
	}
	checkType := func(section, got string, allowed ...string) {
		for _, a := range allowed {
			if got == a {
				return
			}
		}
		errs = append(errs, fmt.Sprintf("%s.type %q is not one of %s", section, got, strings.Join(allowed, ", ")))
	}
	checkType("embedder", c.Embedder.Type, "tfidf", "openai")
	checkType("chunker", c.Chunker.Type, "window", "sentence")
	checkType("vector_store", c.VectorStore.Type, "sqlite", "memory", "qdrant")
	checkType("generator", c.Generator.Type, "openrouter", "openai", "ollama")
	checkType("summarizer", c.Summarizer.Type, "frequency", "none")
	if c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Sprintf("chunker.overlap %d must be below chunker.size %d", c.Chunker.Overlap, c.Chunker.Size))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Confidence returns the classifier settings.
func (c *AppConfig) Confidence() confidence.Config {
	cc := confidence.DefaultConfig()
	cc.Thresholds = c.Retrieval.Thresholds
	cc.Precision = c.Retrieval.ScorePrecision
	if c.Retrieval.ModerateNote != "" {
		cc.ModerateNote = c.Retrieval.ModerateNote
	}
	if c.Retrieval.LowNote != "" {
		cc.LowNote = c.Retrieval.LowNote
	}
	return cc
}

// RetrievalSettings returns the aggregator settings.
func (c *AppConfig) RetrievalSettings() retrieval.Config {
	return retrieval.Config{K: c.Retrieval.K, Sentinel: c.Retrieval.Sentinel}
}
