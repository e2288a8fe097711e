// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	AdminSecret   string `yaml:"admin_secret"`   // password for the admin session login
	SessionSecret string `yaml:"session_secret"` // HMAC key for session cookies
	SecureCookies bool   `yaml:"secure_cookies"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SourceConfig struct {
	APIKey  string        `yaml:"api_key"`  // RapidAPI key for the scraper backend
	APIHost string        `yaml:"api_host"` // e.g. tiktok-download-without-watermark.p.rapidapi.com
	Timeout time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	GeminiModel     string `yaml:"gemini_model"`
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIImgModel  string `yaml:"openai_image_model"`
	MaxPromptTokens int    `yaml:"max_prompt_tokens"` // scraped captions are clamped to this budget
}

type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	RootFolderID    string `yaml:"root_folder_id"` // "" means Drive root
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"` // operator chat for batch notifications
}

type BatchConfig struct {
	MaxLinks             int           `yaml:"max_links"`
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches"`
	LinkConcurrency      int           `yaml:"link_concurrency"`
	RPM                  int           `yaml:"rpm"`         // generation requests per minute, network-wide
	Concurrency          int           `yaml:"concurrency"` // generation calls in flight at once
	MaxAttempts          int           `yaml:"max_attempts"`
	BaseDelay            time.Duration `yaml:"base_delay"`
	CallTimeout          time.Duration `yaml:"call_timeout"`
	AcquireTimeout       time.Duration `yaml:"acquire_timeout"` // 0 = wait forever for a rate-limit slot
	RetentionDays        int           `yaml:"retention_days"`
	DistributedLimiter   bool          `yaml:"distributed_limiter"` // use the Redis sliding-window limiter
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Source   SourceConfig   `yaml:"source"`
	AI       AIConfig       `yaml:"ai"`
	Drive    DriveConfig    `yaml:"drive"`
	Telegram TelegramConfig `yaml:"telegram"`
	Batch    BatchConfig    `yaml:"batch"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Source.Timeout <= 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash-preview-image-generation"
	}
	if cfg.AI.OpenAIImgModel == "" {
		cfg.AI.OpenAIImgModel = "dall-e-3"
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 800
	}
	if cfg.Batch.MaxLinks <= 0 {
		cfg.Batch.MaxLinks = 100
	}
	if cfg.Batch.MaxConcurrentBatches <= 0 {
		cfg.Batch.MaxConcurrentBatches = 3
	}
	if cfg.Batch.LinkConcurrency <= 0 {
		cfg.Batch.LinkConcurrency = 5
	}
	if cfg.Batch.RPM <= 0 {
		cfg.Batch.RPM = 25
	}
	if cfg.Batch.Concurrency <= 0 {
		cfg.Batch.Concurrency = 10
	}
	if cfg.Batch.MaxAttempts <= 0 {
		cfg.Batch.MaxAttempts = 3
	}
	if cfg.Batch.BaseDelay <= 0 {
		cfg.Batch.BaseDelay = 5 * time.Second
	}
	if cfg.Batch.CallTimeout <= 0 {
		cfg.Batch.CallTimeout = 120 * time.Second
	}
	if cfg.Batch.RetentionDays <= 0 {
		cfg.Batch.RetentionDays = 30
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Batch.DistributedLimiter && cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required when batch.distributed_limiter is set")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
