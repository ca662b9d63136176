// Copyright 2025 The Inquiro Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the environment-driven configuration for the
// research orchestration service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Vector store provider names.
const (
	VectorProviderPinecone = "pinecone"
	VectorProviderQdrant   = "qdrant"
	VectorProviderChromem  = "chromem"
)

// Blob store provider names.
const (
	BlobProviderS3     = "s3"
	BlobProviderMemory = "memory"
)

// Config is the full service configuration. All values come from the
// environment; Load applies defaults for everything optional.
type Config struct {
	// API server
	APIHost string
	APIPort int

	// LLM provider
	OpenAIAPIKey  string
	OpenAIBaseURL string
	SmallModel    string
	EmbedModel    string
	LLMTimeout    time.Duration
	LLMMaxRetries int

	// Vector store
	VectorProvider    string
	PineconeAPIKey    string
	PineconeIndexName string
	QdrantHost        string
	QdrantPort        int
	SearchNamespace   string

	// Blob store
	BlobProvider string
	S3BucketName string
	AWSRegion    string
	S3Endpoint   string

	// Task store
	TaskDBPath string

	// Telemetry ledger
	LedgerPath string

	// Executor
	Workers    int
	QueueDepth int

	// Rate limiting
	RateLimitPerMinute int

	// Status cache
	StatusCacheTTL time.Duration

	// Observability
	TracingEnabled  bool
	TracingEndpoint string
	MetricsEnabled  bool
}

// LoadEnvFiles loads .env.local and .env if present. Missing files are
// not an error.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// Load reads the configuration from the environment and applies defaults.
// It does not validate; call Validate before using the result.
func Load() *Config {
	return &Config{
		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvInt("API_PORT", 8080),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		SmallModel:    getEnv("INQUIRO_SMALL_MODEL", "gpt-4o-mini"),
		EmbedModel:    getEnv("INQUIRO_EMBED_MODEL", "text-embedding-3-small"),
		LLMTimeout:    getEnvDuration("INQUIRO_LLM_TIMEOUT", 30*time.Second),
		LLMMaxRetries: getEnvInt("INQUIRO_LLM_MAX_RETRIES", 3),

		VectorProvider:    getEnv("INQUIRO_VECTOR_PROVIDER", VectorProviderPinecone),
		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: os.Getenv("PINECONE_INDEX_NAME"),
		QdrantHost:        getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:        getEnvInt("QDRANT_PORT", 6334),
		SearchNamespace:   getEnv("INQUIRO_SEARCH_NAMESPACE", "research_papers"),

		BlobProvider: getEnv("INQUIRO_BLOB_PROVIDER", BlobProviderS3),
		S3BucketName: os.Getenv("S3_BUCKET_NAME"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT_URL"),

		TaskDBPath: getEnv("TASK_DB_PATH", "./inquiro.db"),
		LedgerPath: getEnv("INQUIRO_LEDGER_PATH", "./api_costs.json"),

		Workers:    getEnvInt("INQUIRO_WORKERS", 4),
		QueueDepth: getEnvInt("INQUIRO_QUEUE_DEPTH", 1024),

		RateLimitPerMinute: getEnvInt("INQUIRO_RATE_LIMIT_PER_MINUTE", 5),

		StatusCacheTTL: getEnvDuration("INQUIRO_STATUS_CACHE_TTL", 2*time.Second),

		TracingEnabled:  getEnvBool("INQUIRO_TRACING_ENABLED", false),
		TracingEndpoint: getEnv("INQUIRO_TRACING_ENDPOINT", "localhost:4317"),
		MetricsEnabled:  getEnvBool("INQUIRO_METRICS_ENABLED", true),
	}
}

// Validate checks that every variable required by the configured
// providers is present. The error message names the missing variable so
// startup failures are actionable.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch c.VectorProvider {
	case VectorProviderPinecone:
		if c.PineconeAPIKey == "" {
			return fmt.Errorf("PINECONE_API_KEY is required when INQUIRO_VECTOR_PROVIDER=pinecone")
		}
		if c.PineconeIndexName == "" {
			return fmt.Errorf("PINECONE_INDEX_NAME is required when INQUIRO_VECTOR_PROVIDER=pinecone")
		}
	case VectorProviderQdrant, VectorProviderChromem:
		// No required credentials
	default:
		return fmt.Errorf("unknown vector provider %q (supported: pinecone, qdrant, chromem)", c.VectorProvider)
	}

	switch c.BlobProvider {
	case BlobProviderS3:
		if c.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required when INQUIRO_BLOB_PROVIDER=s3")
		}
	case BlobProviderMemory:
	default:
		return fmt.Errorf("unknown blob provider %q (supported: s3, memory)", c.BlobProvider)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("INQUIRO_WORKERS must be positive, got %d", c.Workers)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("INQUIRO_QUEUE_DEPTH must be positive, got %d", c.QueueDepth)
	}
	return nil
}

// Address returns the host:port the API server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
