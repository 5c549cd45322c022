// Package config loads service settings from defaults, an optional YAML file,
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrMissingCredential is returned when the chosen provider has no credential.
var ErrMissingCredential = errors.New("missing provider credential")

// Providers.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderOllama  = "ollama"
)

// Index backends.
const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

// Config is passed explicitly to every constructor that needs settings.
type Config struct {
	// Provider and models
	Provider       string  `yaml:"provider"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	AWSRegion      string  `yaml:"aws_region"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ModelName      string  `yaml:"model_name"`
	Temperature    float64 `yaml:"temperature"`
	SystemPrompt   string  `yaml:"system_prompt"`
	PromptFile     string  `yaml:"prompt_file"`

	// Index
	IndexBackend     string `yaml:"index_backend"`
	IndexPath        string `yaml:"index_path"`
	Collection       string `yaml:"collection"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresTable    string `yaml:"postgres_table"`
	TopK             int    `yaml:"top_k"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	ReopenPerRequest bool   `yaml:"reopen_per_request"`
	WatchIndex       bool   `yaml:"watch_index"`

	// HTTP and UI
	Addr           string        `yaml:"addr"`
	BackendURL     string        `yaml:"backend_url"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	UITitle        string        `yaml:"ui_title"`
	Greeting       string        `yaml:"greeting"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:       ProviderOpenAI,
		Temperature:    0,
		IndexBackend:   BackendChromem,
		IndexPath:      "data/tek17.gob",
		Collection:     "knowledge-base",
		PostgresTable:  "ragchat_chunks",
		TopK:           4,
		ChunkSize:      1000,
		ChunkOverlap:   200,
		WatchIndex:     true,
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   2 * time.Minute,
		UITitle:        "TEK17 Chatbot 🔥",
		Greeting:       "Hei! Jeg kan svare på spørsmål om TEK17 kapittel 11 🔥",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadFile overlays a YAML file onto c. Unset keys keep their values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("OPENAI_API_KEY", &c.APIKey)
	str("RAGCHAT_API_KEY", &c.APIKey)
	str("RAGCHAT_PROVIDER", &c.Provider)
	str("RAGCHAT_BASE_URL", &c.BaseURL)
	str("AWS_REGION", &c.AWSRegion)
	str("RAGCHAT_AWS_REGION", &c.AWSRegion)
	str("RAGCHAT_EMBEDDING_MODEL", &c.EmbeddingModel)
	str("RAGCHAT_MODEL_NAME", &c.ModelName)
	str("RAGCHAT_SYSTEM_PROMPT", &c.SystemPrompt)
	str("RAGCHAT_PROMPT_FILE", &c.PromptFile)
	str("RAGCHAT_INDEX_BACKEND", &c.IndexBackend)
	str("RAGCHAT_INDEX_PATH", &c.IndexPath)
	str("RAGCHAT_COLLECTION", &c.Collection)
	str("RAGCHAT_POSTGRES_DSN", &c.PostgresDSN)
	str("RAGCHAT_POSTGRES_TABLE", &c.PostgresTable)
	str("RAGCHAT_ADDR", &c.Addr)
	str("RAGCHAT_BACKEND_URL", &c.BackendURL)
	str("RAGCHAT_UI_TITLE", &c.UITitle)
	str("RAGCHAT_GREETING", &c.Greeting)
	str("RAGCHAT_LOG_LEVEL", &c.LogLevel)
	str("RAGCHAT_LOG_FORMAT", &c.LogFormat)
	num("RAGCHAT_TOP_K", &c.TopK)
	num("RAGCHAT_CHUNK_SIZE", &c.ChunkSize)
	num("RAGCHAT_CHUNK_OVERLAP", &c.ChunkOverlap)
	boolean("RAGCHAT_REOPEN_PER_REQUEST", &c.ReopenPerRequest)
	boolean("RAGCHAT_WATCH_INDEX", &c.WatchIndex)

	if v, ok := lookup("RAGCHAT_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RAGCHAT_TEMPERATURE: %w", err))
		} else {
			c.Temperature = f
		}
	}
	if v, ok := lookup("RAGCHAT_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

// RegisterFlags binds the common settings to fs. Flags are applied on fs.Parse
// and so win over file and environment values.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Provider, "provider", c.Provider, "model provider: openai, bedrock or ollama")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "provider API base URL")
	fs.StringVar(&c.EmbeddingModel, "embedding-model", c.EmbeddingModel, "embedding model (must match the index)")
	fs.StringVar(&c.ModelName, "model", c.ModelName, "chat model")
	fs.Float64Var(&c.Temperature, "temperature", c.Temperature, "sampling temperature")
	fs.StringVar(&c.IndexBackend, "index-backend", c.IndexBackend, "index backend: chromem or pgvector")
	fs.StringVar(&c.IndexPath, "index", c.IndexPath, "path of the chromem index file")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "postgres connection string for the pgvector backend")
	fs.IntVar(&c.TopK, "top-k", c.TopK, "chunks retrieved per question")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or console")
}

// Validate checks the settings for the chosen provider and backend.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOpenAI:
		if c.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingCredential))
		}
	case ProviderBedrock:
		if c.AWSRegion == "" {
			errs = append(errs, errors.New("bedrock provider needs aws_region"))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	switch c.IndexBackend {
	case BackendChromem:
		if c.IndexPath == "" {
			errs = append(errs, errors.New("index_path is required"))
		}
	case BackendPgvector:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.IndexBackend))
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking: size %d overlap %d", c.ChunkSize, c.ChunkOverlap))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, the file named by -config (if any),
// the environment and the remaining flags in args.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	// Pre-scan for -config so the file is applied before env and flags.
	path := configPath(args)
	if path == "" {
		path = os.Getenv("RAGCHAT_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return cfg, err
	}

	var ignored string
	fs.StringVar(&ignored, "config", path, "YAML config file")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if a == "--" {
			break
		}
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
