package llm

import (
	"fmt"
	"strings"

	"github.com/smallnest/researchgraph/llm/openaicompat"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// Config selects and configures a model provider.
type Config struct {
	// Provider is "openai" (langchaingo client) or "compat" (any OpenAI compatible endpoint).
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// NewFromConfig builds the model described by cfg.
func NewFromConfig(cfg Config) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		var opts []lcopenai.Option
		if cfg.APIKey != "" {
			opts = append(opts, lcopenai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, lcopenai.WithModel(cfg.Model))
		}
		model, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: openai: %w", err)
		}
		return model, nil

	case "compat", "openai-compatible":
		opts := []openaicompat.Option{openaicompat.WithTemperature(cfg.Temperature)}
		if cfg.APIKey != "" {
			opts = append(opts, openaicompat.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openaicompat.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openaicompat.WithModel(cfg.Model))
		}
		model, err := openaicompat.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: compat: %w", err)
		}
		return model, nil
	}
	return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
}
