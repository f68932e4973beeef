package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPPort          = "8080"
	defaultTemporalAddress   = "localhost:7233"
	defaultTemporalNS        = "default"
	defaultTaskQueue         = "summons-generation-task-queue"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITimeout     = 120
	defaultMinioEndpoint     = "localhost:9000"
	defaultMinioBucket       = "rechtstreeks"
	defaultGenerationTimeout = 300
	defaultReaperInterval    = 60
)

// Config is resolved as defaults, then the optional TOML file, then environment variables.
type Config struct {
	HTTPPort             string `toml:"http_port"`
	PostgresDSN          string `toml:"postgres_dsn"`
	TemporalAddress      string `toml:"temporal_address"`
	TemporalNamespace    string `toml:"temporal_namespace"`
	TemporalTaskQueue    string `toml:"temporal_task_queue"`
	OpenAIAPIKey         string `toml:"openai_api_key"`
	OpenAIModel          string `toml:"openai_model"`
	OpenAITimeoutSec     int    `toml:"openai_timeout_sec"`
	MinioEndpoint        string `toml:"minio_endpoint"`
	MinioAccessKey       string `toml:"minio_access_key"`
	MinioSecretKey       string `toml:"minio_secret_key"`
	MinioBucket          string `toml:"minio_bucket"`
	MinioUseSSL          bool   `toml:"minio_use_ssl"`
	WorkflowIDPrefix     string `toml:"workflow_id_prefix"`
	AllowedUploadBytes   int64  `toml:"max_upload_bytes"`
	GenerationTimeoutSec int    `toml:"generation_timeout_sec"`
	ReaperIntervalSec    int    `toml:"reaper_interval_sec"`
	APITokens            string `toml:"api_tokens"`
	PDFRendererURL       string `toml:"pdf_renderer_url"`
	LogLevel             string `toml:"log_level"`
	LogFormat            string `toml:"log_format"`
}

func Default() Config {
	return Config{
		HTTPPort:             defaultHTTPPort,
		TemporalAddress:      defaultTemporalAddress,
		TemporalNamespace:    defaultTemporalNS,
		TemporalTaskQueue:    defaultTaskQueue,
		OpenAIModel:          defaultOpenAIModel,
		OpenAITimeoutSec:     defaultOpenAITimeout,
		MinioEndpoint:        defaultMinioEndpoint,
		MinioBucket:          defaultMinioBucket,
		WorkflowIDPrefix:     "summons-section",
		AllowedUploadBytes:   20 * 1024 * 1024,
		GenerationTimeoutSec: defaultGenerationTimeout,
		ReaperIntervalSec:    defaultReaperInterval,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Load reads the file named by RECHTSTREEKS_CONFIG (if any) and applies env overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("RECHTSTREEKS_CONFIG")); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPPort = getenv("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.TemporalAddress = getenv("TEMPORAL_ADDRESS", cfg.TemporalAddress)
	cfg.TemporalNamespace = getenv("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getenv("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)
	cfg.OpenAIAPIKey = getenv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getenv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAITimeoutSec = getenvInt("OPENAI_TIMEOUT_SEC", cfg.OpenAITimeoutSec)
	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getenv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getenvBool("MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.WorkflowIDPrefix = getenv("WORKFLOW_ID_PREFIX", cfg.WorkflowIDPrefix)
	cfg.AllowedUploadBytes = int64(getenvInt("MAX_UPLOAD_BYTES", int(cfg.AllowedUploadBytes)))
	cfg.GenerationTimeoutSec = getenvInt("GENERATION_TIMEOUT_SEC", cfg.GenerationTimeoutSec)
	cfg.ReaperIntervalSec = getenvInt("REAPER_INTERVAL_SEC", cfg.ReaperIntervalSec)
	cfg.APITokens = getenv("API_TOKENS", cfg.APITokens)
	cfg.PDFRendererURL = getenv("PDF_RENDERER_URL", cfg.PDFRendererURL)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.GenerationTimeoutSec <= 0 {
		return Config{}, fmt.Errorf("GENERATION_TIMEOUT_SEC must be positive")
	}

	return cfg, nil
}

func (c Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

func (c Config) ReaperInterval() time.Duration {
	if c.ReaperIntervalSec <= 0 {
		return time.Duration(defaultReaperInterval) * time.Second
	}
	return time.Duration(c.ReaperIntervalSec) * time.Second
}

// Tokens parses API_TOKENS ("token:user,token2:user2") into token -> user id.
func (c Config) Tokens() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.APITokens, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		out[token] = user
	}
	return out
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
