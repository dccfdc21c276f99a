// SPDX-License-Identifier: MIT

// Package config loads the process configuration from environment variables.
// All recognized options are enumerated here; anything else is ignored.
package config

import (
	"errors"
	"fmt"
)

// StorageBackend selects the chunk store implementation. The choice is
// process-wide and fixed at startup.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// S3Config holds the S3-compatible object store settings.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKeyID    string
	SecretKey      string
	ForcePathStyle bool
}

// StorageConfig selects and configures the chunk store backend.
type StorageConfig struct {
	Backend StorageBackend
	Path    string // local backend root directory
	S3      S3Config
}

// RedisConfig points at the job-queue backend. An empty Host disables queues:
// jobs are then skipped silently.
type RedisConfig struct {
	Host string
	Port int
}

// Addr returns host:port, or "" when queues are disabled.
func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a job-queue backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// WorkerConfig configures the post-production worker process.
type WorkerConfig struct {
	Concurrency int
	TempDir     string
}

// TranscriptionConfig selects the transcription provider. When no key is set
// the transcription worker does not start.
type TranscriptionConfig struct {
	DeepgramAPIKey string
	GeminiAPIKey   string
	GeminiModel    string
}

// Configured reports whether any transcription provider is available.
func (c TranscriptionConfig) Configured() bool {
	return c.DeepgramAPIKey != "" || c.GeminiAPIKey != ""
}

// Config is the full process configuration.
type Config struct {
	Port          int
	CORSOrigin    string
	DatabaseURL   string
	Storage       StorageConfig
	Redis         RedisConfig
	Worker        WorkerConfig
	Transcription TranscriptionConfig
	LogLevel      string
}

// Load reads the configuration from the environment. DATABASE_URL is the only
// required option.
func Load() (Config, error) {
	cfg := Config{
		Port:        ParseInt("PORT", 3001),
		CORSOrigin:  ParseString("CORS_ORIGIN", "*"),
		DatabaseURL: ParseString("DATABASE_URL", ""),
		Storage: StorageConfig{
			Backend: StorageBackend(ParseString("STORAGE_BACKEND", string(StorageLocal))),
			Path:    ParseString("STORAGE_PATH", "./storage"),
			S3: S3Config{
				Endpoint:       ParseString("S3_ENDPOINT", ""),
				Region:         ParseString("S3_REGION", "us-east-1"),
				Bucket:         ParseString("S3_BUCKET", ""),
				AccessKeyID:    ParseString("S3_ACCESS_KEY_ID", ""),
				SecretKey:      ParseString("S3_SECRET_ACCESS_KEY", ""),
				ForcePathStyle: ParseBool("S3_FORCE_PATH_STYLE", false),
			},
		},
		Redis: RedisConfig{
			Host: ParseString("REDIS_HOST", ""),
			Port: ParseInt("REDIS_PORT", 6379),
		},
		Worker: WorkerConfig{
			Concurrency: ParseInt("WORKER_CONCURRENCY", 2),
			TempDir:     ParseString("WORKER_TEMP_DIR", ""),
		},
		Transcription: TranscriptionConfig{
			DeepgramAPIKey: ParseString("DEEPGRAM_API_KEY", ""),
			GeminiAPIKey:   ParseString("GEMINI_API_KEY", ""),
			GeminiModel:    ParseString("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		LogLevel: ParseString("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}

	switch cfg.Storage.Backend {
	case StorageLocal, StorageS3:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == StorageS3 && cfg.Storage.S3.Bucket == "" {
		return Config{}, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}

	return cfg, nil
}
