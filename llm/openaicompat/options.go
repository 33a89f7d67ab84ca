package openaicompat

import (
	"net/http"
	"os"

	"github.com/tmc/langchaingo/callbacks"
)

const defaultBaseURL = "https://api.openai.com/v1"

type options struct {
	apiKey           string
	model            string
	baseURL          string
	temperature      float64
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithAPIKey sets the API key for the LLM.
func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
	}
}

// WithModel sets the model name for the LLM.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL sets the base URL of the OpenAI compatible API, including the version
// path. Default is "https://api.openai.com/v1".
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithTemperature sets the default sampling temperature. Call options override it.
func WithTemperature(t float64) Option {
	return func(opts *options) {
		opts.temperature = t
	}
}

// WithHTTPClient sets the HTTP client for the LLM.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithCallbacks sets the callbacks handler for the LLM.
func WithCallbacks(handler callbacks.Handler) Option {
	return func(opts *options) {
		opts.callbacksHandler = handler
	}
}

// getEnvOrDefault retrieves an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
