package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/store/backend"
	"github.com/smallnest/researchgraph/tool"
)

// Config holds the server configuration.
type Config struct {
	Addr string

	LLM   llm.Config
	Store backend.Config

	// SearchProvider is "tavily", "brave" or "wikipedia".
	SearchProvider string
	SearchAPIKey   string

	MaxIterations int
	// TaskTimeout bounds one planning run.
	TaskTimeout time.Duration

	NATSURL    string
	NATSPrefix string

	LogLevel string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	return Config{
		Addr: getEnv("SERVER_HOST", "0.0.0.0") + ":" + getEnv("SERVER_PORT", "8090"),
		LLM: llm.Config{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: 0.7,
		},
		Store: backend.Config{
			Kind:     getEnv("CHECKPOINT_STORE", "memory"),
			DSN:      os.Getenv("CHECKPOINT_DSN"),
			Password: os.Getenv("CHECKPOINT_PASSWORD"),
			Table:    os.Getenv("CHECKPOINT_TABLE"),
			TTL:      getEnvDuration("CHECKPOINT_TTL", 24*time.Hour),
		},
		SearchProvider: strings.ToLower(getEnv("SEARCH_PROVIDER", "tavily")),
		SearchAPIKey:   os.Getenv("SEARCH_API_KEY"),
		MaxIterations:  getEnvInt("MAX_ITERATIONS", 10),
		TaskTimeout:    getEnvDuration("TASK_TIMEOUT", 10*time.Minute),
		NATSURL:        os.Getenv("NATS_URL"),
		NATSPrefix:     getEnv("NATS_PREFIX", "researchgraph.travel"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Search builds the retriever the specialists search with.
func (c Config) Search() (tool.Retriever, error) {
	switch c.SearchProvider {
	case "tavily":
		return tool.NewTavilySearch(c.SearchAPIKey)
	case "brave":
		return tool.NewBraveSearch(c.SearchAPIKey)
	case "wikipedia":
		return tool.NewWikipedia(), nil
	}
	return nil, fmt.Errorf("unknown search provider %q", c.SearchProvider)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
