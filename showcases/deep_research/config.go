package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/researchgraph/llm"
	"github.com/smallnest/researchgraph/log"
	"github.com/smallnest/researchgraph/prebuilt/research"
	"github.com/smallnest/researchgraph/store/backend"
	"github.com/smallnest/researchgraph/tool"
	"github.com/tmc/langchaingo/llms"
)

// Config holds the CLI configuration. Everything comes from the environment,
// after .env has been loaded.
type Config struct {
	LLM   llm.Config
	Store backend.Config

	// SearchProvider is "tavily" or "brave".
	SearchProvider string
	SearchAPIKey   string
	WikipediaLang  string

	MaxAnalysts int
	MaxTurns    int
	Concurrency int

	// NATSURL enables event publishing when set.
	NATSURL    string
	NATSPrefix string

	LogLevel string
	// Style is a glamour style name, or "auto".
	Style string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	return Config{
		LLM: llm.Config{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0),
		},
		Store: backend.Config{
			Kind:     getEnv("CHECKPOINT_STORE", "file"),
			DSN:      getEnv("CHECKPOINT_DSN", ".deep_research"),
			Password: os.Getenv("CHECKPOINT_PASSWORD"),
			Table:    os.Getenv("CHECKPOINT_TABLE"),
			TTL:      getEnvDuration("CHECKPOINT_TTL", 0),
		},
		SearchProvider: strings.ToLower(getEnv("SEARCH_PROVIDER", "tavily")),
		SearchAPIKey:   os.Getenv("SEARCH_API_KEY"),
		WikipediaLang:  getEnv("WIKIPEDIA_LANG", "en"),
		MaxAnalysts:    getEnvInt("MAX_ANALYSTS", 3),
		MaxTurns:       getEnvInt("MAX_TURNS", 2),
		Concurrency:    getEnvInt("CONCURRENCY", 4),
		NATSURL:        os.Getenv("NATS_URL"),
		NATSPrefix:     getEnv("NATS_PREFIX", "researchgraph.runs"),
		LogLevel:       getEnv("LOG_LEVEL", "warn"),
		Style:          getEnv("GLAMOUR_STYLE", "auto"),
	}
}

// Logger builds the golog backed logger for the configured level.
func (c Config) Logger() (log.Logger, error) {
	level, err := log.ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewGologLoggerWithOutput(os.Stderr, level), nil
}

// Research assembles the pipeline configuration. Pages listed in sources are
// fetched once and searched next to Wikipedia as part of the knowledge base.
func (c Config) Research(ctx context.Context, logger log.Logger, sources []string) (research.Config, error) {
	model, err := llm.NewFromConfig(c.LLM)
	if err != nil {
		return research.Config{}, err
	}

	var web tool.Retriever
	switch c.SearchProvider {
	case "tavily":
		web, err = tool.NewTavilySearch(c.SearchAPIKey)
	case "brave":
		web, err = tool.NewBraveSearch(c.SearchAPIKey)
	default:
		err = fmt.Errorf("unknown search provider %q", c.SearchProvider)
	}
	if err != nil {
		return research.Config{}, err
	}

	knowledge := tool.Retriever(tool.NewWikipedia(tool.WithWikipediaLang(c.WikipediaLang)))
	if len(sources) > 0 {
		docs, errs := tool.NewWebFetch().FetchAll(ctx, sources...)
		for _, err := range errs {
			logger.Warn("skipping source: %v", err)
		}
		if len(docs) > 0 {
			knowledge = tool.Multi(knowledge, tool.NewCorpus(docs))
		}
	}

	return research.Config{
		Model:       model,
		Web:         web,
		Knowledge:   knowledge,
		MaxAnalysts: c.MaxAnalysts,
		MaxTurns:    c.MaxTurns,
		Concurrency: c.Concurrency,
		Logger:      logger,
	}, nil
}

// Offline is the pipeline configuration for commands that only read stored
// runs, so they work without model or search credentials.
func (c Config) Offline(logger log.Logger) research.Config {
	return research.Config{
		Model:       offlineModel{},
		Web:         tool.Static(nil),
		Knowledge:   tool.Static(nil),
		MaxAnalysts: c.MaxAnalysts,
		MaxTurns:    c.MaxTurns,
		Logger:      logger,
	}
}

var errOffline = errors.New("no model configured for this command")

type offlineModel struct{}

func (offlineModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errOffline
}

func (offlineModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errOffline
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
