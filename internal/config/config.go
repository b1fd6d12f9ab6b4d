// Package config loads voxflow's runtime configuration from a YAML file,
// .env files and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.yaml"

// Config is the root configuration.
type Config struct {
	Log            LogConfig            `yaml:"log"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Queue          QueueConfig          `yaml:"queue"`
	Storage        StorageConfig        `yaml:"storage"`
	Provider       ProviderConfig       `yaml:"provider"`
	Retry          RetryConfig          `yaml:"retry"`
	Segmentation   SegmentationConfig   `yaml:"segmentation"`
	Transports     TransportsConfig     `yaml:"transports"`
	VoiceCommands  VoiceCommandsConfig  `yaml:"voice_commands"`
	Categorization CategorizationConfig `yaml:"categorization"`
	Server         ServerConfig         `yaml:"server"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn" validate:"required"`
}

type RedisConfig struct {
	URL string `yaml:"url" validate:"required,url"`
	// Events enables session event publishing.
	Events bool `yaml:"events"`
}

type QueueConfig struct {
	Backend         string         `yaml:"backend" validate:"oneof=asynq temporal"`
	Concurrency     int            `yaml:"concurrency" validate:"min=1,max=100"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	TaskTimeout     time.Duration  `yaml:"task_timeout" validate:"min=0"`
	SweepInterval   time.Duration  `yaml:"sweep_interval" validate:"min=1s"`
	SweepBatch      int            `yaml:"sweep_batch" validate:"min=1"`
	Temporal        TemporalConfig `yaml:"temporal"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

type StorageConfig struct {
	AudioDir string `yaml:"audio_dir" validate:"required"`
	TempDir  string `yaml:"temp_dir"`
}

type ProviderConfig struct {
	Name     string        `yaml:"name" validate:"oneof=openai gemini whisper_server"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=1s,max=30m"`
	Prompt   string        `yaml:"prompt"`
	Language string        `yaml:"language"`
}

type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" validate:"min=1"`
	MaxQuotaAttempts int           `yaml:"max_quota_attempts" validate:"min=0"`
	BaseDelay        time.Duration `yaml:"base_delay" validate:"min=1s"`
	MaxDelay         time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
}

type SegmentationConfig struct {
	MaxPayloadBytes       int64   `yaml:"max_payload_bytes" validate:"min=1"`
	TargetSegmentBytes    int64   `yaml:"target_segment_bytes" validate:"min=1,ltefield=MaxPayloadBytes"`
	MinSegmentSeconds     float64 `yaml:"min_segment_seconds" validate:"gt=0"`
	DefaultSegmentSeconds float64 `yaml:"default_segment_seconds" validate:"gt=0"`
	FFmpegPath            string  `yaml:"ffmpeg_path"`
	FFprobePath           string  `yaml:"ffprobe_path"`
}

type TransportsConfig struct {
	Telegram TelegramConfig    `yaml:"telegram"`
	S3       ObjectStoreConfig `yaml:"s3"`
}

type TelegramConfig struct {
	BotToken     string        `yaml:"bot_token"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxFileBytes int64         `yaml:"max_file_bytes" validate:"min=0"`
}

type ObjectStoreConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint" validate:"required_if=Enabled true"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket" validate:"required_if=Enabled true"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"use_ssl"`
	PathStyle     bool          `yaml:"path_style"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
	MaxFileBytes  int64         `yaml:"max_file_bytes" validate:"min=0"`
}

type VoiceCommandsConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Triggers         []string `yaml:"triggers" validate:"required_if=Enabled true,dive,required"`
	ProjectPattern   string   `yaml:"project_pattern"`
	PerformerPattern string   `yaml:"performer_pattern"`
}

type CategorizationConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Categories []string      `yaml:"categories" validate:"required_if=Enabled true,dive,required"`
	Fallback   string        `yaml:"fallback"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxChars   int           `yaml:"max_chars" validate:"min=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns a configuration that runs against a local sqlite file,
// a local Redis and the OpenAI API.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "data/voxflow.db"},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0", Events: true},
		Queue: QueueConfig{
			Backend:         "asynq",
			Concurrency:     4,
			ShutdownTimeout: 30 * time.Second,
			TaskTimeout:     30 * time.Minute,
			SweepInterval:   time.Minute,
			SweepBatch:      100,
			Temporal: TemporalConfig{
				HostPort:  "localhost:7233",
				Namespace: "default",
				TaskQueue: "voxflow",
			},
		},
		Storage: StorageConfig{AudioDir: "data/audio"},
		Provider: ProviderConfig{
			Name:    "openai",
			Timeout: 5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:      10,
			MaxQuotaAttempts: 50,
			BaseDelay:        time.Minute,
			MaxDelay:         30 * time.Minute,
		},
		Segmentation: SegmentationConfig{
			MaxPayloadBytes:       25 << 20,
			TargetSegmentBytes:    20 << 20,
			MinSegmentSeconds:     30,
			DefaultSegmentSeconds: 600,
			FFmpegPath:            "ffmpeg",
			FFprobePath:           "ffprobe",
		},
		Transports: TransportsConfig{
			Telegram: TelegramConfig{Timeout: 2 * time.Minute},
			S3:       ObjectStoreConfig{UseSSL: true, PresignExpiry: 15 * time.Minute},
		},
		VoiceCommands: VoiceCommandsConfig{
			Enabled:  true,
			Triggers: []string{"create task", "new task"},
		},
		Categorization: CategorizationConfig{
			Enabled:    true,
			Model:      "gpt-4o-mini",
			Categories: []string{"task", "idea", "note", "question", "other"},
			Fallback:   "other",
			Timeout:    30 * time.Second,
			MaxChars:   4000,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads .env files, then path (if it exists) over the defaults, then
// applies environment overrides and validates the result. An empty path
// means DefaultPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	if _, err := LoadEnv(); err != nil {
		return nil, err
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays well-known environment variables. lookup is usually
// os.Getenv.
func (c *Config) ApplyEnv(lookup func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Log.Level, "VOXFLOW_LOG_LEVEL")
	set(&c.Queue.Backend, "VOXFLOW_QUEUE_BACKEND")
	set(&c.Provider.Name, "VOXFLOW_PROVIDER")
	set(&c.Server.Addr, "VOXFLOW_ADDR")
	set(&c.Storage.AudioDir, "VOXFLOW_AUDIO_DIR")

	if dsn := strings.TrimSpace(lookup("DATABASE_URL")); dsn != "" {
		c.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			c.Database.Driver = "postgres"
		}
	}
	set(&c.Redis.URL, "REDIS_URL")

	openaiKey := strings.TrimSpace(lookup("OPENAI_API_KEY"))
	geminiKey := strings.TrimSpace(lookup("GEMINI_API_KEY"))
	switch c.Provider.Name {
	case "openai":
		if openaiKey != "" {
			c.Provider.APIKey = openaiKey
		}
	case "gemini":
		if geminiKey != "" {
			c.Provider.APIKey = geminiKey
		}
	case "whisper_server":
		set(&c.Provider.BaseURL, "WHISPER_SERVER_URL")
	}
	if openaiKey != "" {
		c.Categorization.APIKey = openaiKey
	}

	set(&c.Transports.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")

	set(&c.Transports.S3.Endpoint, "MINIO_ENDPOINT")
	set(&c.Transports.S3.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Transports.S3.SecretKey, "MINIO_SECRET_KEY")
	set(&c.Transports.S3.Bucket, "MINIO_BUCKET")
	if v := strings.TrimSpace(lookup("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MINIO_USE_SSL %q: %w", v, err)
		}
		c.Transports.S3.UseSSL = b
	}
	if c.Transports.S3.Endpoint != "" && c.Transports.S3.Bucket != "" {
		c.Transports.S3.Enabled = true
	}

	set(&c.Queue.Temporal.HostPort, "TEMPORAL_HOST")
	set(&c.Queue.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	return nil
}
