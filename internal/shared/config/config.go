package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is read from the working directory when CHARTYAP_CONFIG is unset.
const DefaultConfigFile = "chartyap.yaml"

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL    string
	EventsQueueURL string

	AnalysisBaseURL string
	AnalysisTimeout time.Duration
	AnalysisRetries int

	PreviewMaxDimension int
	PreviewMaxPixels    int
	MaxDatasetRows      int
	UploadMaxBytes      int64
	SessionIdleTTL      time.Duration

	// ConfigFile is the YAML file that was applied, empty when none was found.
	ConfigFile string
}

var defaults = map[string]any{
	"port":                     "8080",
	"env":                      "dev",
	"cors_allow_origins":       "http://localhost:5173",
	"object_store":             "local",
	"local_store_dir":          "./data",
	"analysis_base_url":        "http://localhost:8000",
	"analysis_timeout_seconds": 120,
	"analysis_retries":         1,
	"preview_max_dimension":    480,
	"preview_max_pixels":       40_000_000,
	"max_dataset_rows":         5000,
	"upload_max_bytes":         25 << 20,
	"session_idle_ttl":         "2h",
}

// Load reads configuration with precedence env > config file > defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path := findConfigFile(os.Getenv("CHARTYAP_CONFIG"))
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// PORT -> port, ANALYSIS_BASE_URL -> analysis_base_url. Empty values do not override.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env vars: %w", err)
	}

	cfg := Config{
		Port:                k.String("port"),
		Env:                 normalizeEnv(k.String("env")),
		CORSAllowOrigin:     splitAndTrim(k.String("cors_allow_origins")),
		ObjectStoreType:     normalizeStoreType(k.String("object_store")),
		LocalStoreDir:       k.String("local_store_dir"),
		AWSRegion:           k.String("aws_region"),
		S3Bucket:            k.String("s3_bucket"),
		S3Prefix:            k.String("s3_prefix"),
		SSEKMSKeyID:         k.String("sse_kms_key_id"),
		DatabaseURL:         k.String("database_url"),
		EventsQueueURL:      k.String("events_queue_url"),
		AnalysisBaseURL:     strings.TrimRight(k.String("analysis_base_url"), "/"),
		AnalysisTimeout:     time.Duration(k.Int("analysis_timeout_seconds")) * time.Second,
		AnalysisRetries:     k.Int("analysis_retries"),
		PreviewMaxDimension: k.Int("preview_max_dimension"),
		PreviewMaxPixels:    k.Int("preview_max_pixels"),
		MaxDatasetRows:      k.Int("max_dataset_rows"),
		UploadMaxBytes:      k.Int64("upload_max_bytes"),
		SessionIdleTTL:      k.Duration("session_idle_ttl"),
		ConfigFile:          path,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is not set in production; run history is kept in memory")
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("analysis_timeout_seconds must be positive")
	}
	if c.AnalysisRetries < 0 {
		return fmt.Errorf("analysis_retries must not be negative")
	}
	if c.MaxDatasetRows <= 0 {
		return fmt.Errorf("max_dataset_rows must be positive")
	}
	if c.PreviewMaxDimension <= 0 {
		return fmt.Errorf("preview_max_dimension must be positive")
	}
	if c.PreviewMaxPixels <= 0 {
		return fmt.Errorf("preview_max_pixels must be positive")
	}
	if c.ObjectStoreType == "s3" && c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when OBJECT_STORE=s3")
	}
	return nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
