package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"grounded-rag/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	DriverPgdriver = "pgdriver"
	DriverPq       = "postgres"
	DriverPgx      = "pgx"
)

type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
	RAG         RAGConfig         `yaml:"rag"`
	Log         LogConfig         `yaml:"log"`
}

type EmbeddingConfig struct {
	Provider         string      `yaml:"provider"`
	BaseURL          string      `yaml:"base_url"`
	Key              string      `yaml:"key"`
	Model            string      `yaml:"model"`
	Dimension        int         `yaml:"dimension"`
	BatchSize        int         `yaml:"batch_size"`
	MaxConcurrency   int         `yaml:"max_concurrency"`
	MinTextLength    int         `yaml:"min_text_length"`
	MaxChars         int         `yaml:"max_chars"`
	QueryInstruction string      `yaml:"query_instruction"`
	Retry            RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type VectorStoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	ExportPath    string `yaml:"export_path"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type RAGConfig struct {
	TopK         int `yaml:"top_k"`
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig decodes the YAML file at path over the defaults, then applies
// RAG_* environment overrides. Keys present in the file win over defaults,
// including explicit zeros. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.deriveExportPath()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with only defaults applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	cfg.deriveExportPath()
	return &cfg
}

// deriveExportPath places the backup next to the collection unless set.
func (c *Config) deriveExportPath() {
	if c.VectorStore.ExportPath == "" {
		c.VectorStore.ExportPath = c.VectorStore.Path + "/" + c.VectorStore.Collection + ".chromem"
	}
}

func applyDefaults(cfg *Config) {
	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderOpenAI
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.BatchSize == 0 {
		e.BatchSize = 32
	}
	if e.MaxConcurrency == 0 {
		e.MaxConcurrency = 4
	}
	if e.MinTextLength == 0 {
		e.MinTextLength = models.MinTextLength
	}
	if e.MaxChars == 0 {
		e.MaxChars = 2048
	}
	if e.QueryInstruction == "" {
		e.QueryInstruction = models.QueryInstruction
	}
	if e.Retry.MaxAttempts == 0 {
		e.Retry.MaxAttempts = 3
	}
	if e.Retry.BaseDelay == 0 {
		e.Retry.BaseDelay = 500 * time.Millisecond
	}
	if e.Retry.MaxDelay == 0 {
		e.Retry.MaxDelay = 10 * time.Second
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = ProviderOpenAI
	}
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.Temperature == 0 {
		l.Temperature = 0.1
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 1500
	}

	v := &cfg.VectorStore
	if v.Backend == "" {
		v.Backend = BackendChromem
	}
	if v.Path == "" {
		v.Path = "./chromemdb"
	}
	if v.Collection == "" {
		v.Collection = "documents"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPgdriver
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "chunks"
	}

	r := &cfg.RAG
	if r.TopK == 0 {
		r.TopK = models.DefaultTopK
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = 1000
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 200
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Embedding.Key, "OPENAI_API_KEY")
	setString(&cfg.LLM.Key, "OPENAI_API_KEY")

	setString(&cfg.Embedding.Key, "RAG_EMBEDDING_KEY")
	setString(&cfg.Embedding.Model, "RAG_EMBEDDING_MODEL")
	setString(&cfg.Embedding.BaseURL, "RAG_EMBEDDING_BASE_URL")
	setString(&cfg.LLM.Key, "RAG_LLM_KEY")
	setString(&cfg.LLM.Model, "RAG_LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "RAG_LLM_BASE_URL")
	setString(&cfg.VectorStore.Backend, "RAG_VECTOR_STORE_BACKEND")
	setString(&cfg.VectorStore.Collection, "RAG_COLLECTION")
	setString(&cfg.Database.DSN, "RAG_DATABASE_DSN")

	for env, dst := range map[string]*int{
		"RAG_BATCH_SIZE":         &cfg.Embedding.BatchSize,
		"RAG_MAX_CONCURRENCY":    &cfg.Embedding.MaxConcurrency,
		"RAG_RETRY_MAX_ATTEMPTS": &cfg.Embedding.Retry.MaxAttempts,
		"RAG_MIN_TEXT_LENGTH":    &cfg.Embedding.MinTextLength,
		"RAG_MAX_CHARS":          &cfg.Embedding.MaxChars,
	} {
		if err := setInt(dst, env); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", env, v, err)
	}
	*dst = n
	return nil
}

func (c *Config) Validate() error {
	e := c.Embedding
	if e.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", e.BatchSize)
	}
	if e.MaxConcurrency <= 0 {
		return fmt.Errorf("embedding.max_concurrency must be positive, got %d", e.MaxConcurrency)
	}
	if e.MinTextLength < 0 || e.MaxChars <= 0 {
		return fmt.Errorf("embedding.min_text_length and embedding.max_chars must be non-negative and positive")
	}
	if n := utf8.RuneCountInString(e.QueryInstruction); n > 0 && e.MaxChars <= n {
		return fmt.Errorf("embedding.max_chars (%d) must exceed the %d-rune query_instruction", e.MaxChars, n)
	}
	if e.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative")
	}
	if e.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("embedding.retry.max_attempts must be positive, got %d", e.Retry.MaxAttempts)
	}
	if e.Retry.MaxDelay < e.Retry.BaseDelay {
		return fmt.Errorf("embedding.retry.max_delay (%s) is below base_delay (%s)", e.Retry.MaxDelay, e.Retry.BaseDelay)
	}
	if e.Retry.Jitter < 0 || e.Retry.Jitter > 1 {
		return fmt.Errorf("embedding.retry.jitter must be within [0, 1]")
	}
	if err := checkProvider("embedding", e.Provider); err != nil {
		return err
	}
	if err := checkProvider("llm", c.LLM.Provider); err != nil {
		return err
	}
	switch c.VectorStore.Backend {
	case BackendChromem, BackendPgvector:
	default:
		return fmt.Errorf("unknown vector_store.backend %q", c.VectorStore.Backend)
	}
	switch c.Database.Driver {
	case DriverPgdriver, DriverPq, DriverPgx:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > models.MaxTopK {
		return fmt.Errorf("rag.top_k must be within [1, %d]", models.MaxTopK)
	}
	return nil
}

func checkProvider(section, p string) error {
	switch p {
	case ProviderOpenAI, ProviderOllama:
		return nil
	}
	return fmt.Errorf("unknown %s.provider %q", section, p)
}
