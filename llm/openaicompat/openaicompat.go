// Package openaicompat is an llms.Model for any endpoint speaking the OpenAI chat
// completions protocol (OpenAI, DeepSeek, Qwen, vLLM, Ollama, ...).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrEmptyResponse = errors.New("no response")
	ErrMissingModel  = errors.New("model not set")
)

// LLM is a chat completions client.
type LLM struct {
	client           *openai.Client
	model            string
	temperature      float64
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a client. The API key defaults to OPENAI_API_KEY, the base URL to
// OPENAI_BASE_URL and the model to OPENAI_MODEL.
//
//	model, err := openaicompat.New(
//		openaicompat.WithBaseURL("https://api.deepseek.com/v1"),
//		openaicompat.WithModel("deepseek-chat"),
//	)
func New(opts ...Option) (*LLM, error) {
	options := &options{
		apiKey:      getEnvOrDefault("OPENAI_API_KEY", ""),
		baseURL:     getEnvOrDefault("OPENAI_BASE_URL", defaultBaseURL),
		model:       getEnvOrDefault("OPENAI_MODEL", ""),
		temperature: -1,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.model == "" {
		return nil, ErrMissingModel
	}

	cfg := openai.DefaultConfig(options.apiKey)
	cfg.BaseURL = strings.TrimSuffix(options.baseURL, "/")
	if options.httpClient != nil {
		cfg.HTTPClient = options.httpClient
	}

	return &LLM{
		client:           openai.NewClientWithConfig(cfg),
		model:            options.model,
		temperature:      options.temperature,
		CallbacksHandler: options.callbacksHandler,
	}, nil
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			role = openai.ChatMessageRoleSystem
		case llms.ChatMessageTypeAI:
			role = openai.ChatMessageRoleAssistant
		}

		var content strings.Builder
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content.WriteString(text.Text)
			}
		}
		chat = append(chat, openai.ChatCompletionMessage{Role: role, Content: content.String()})
	}

	req := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  chat,
		MaxTokens: opts.MaxTokens,
		TopP:      float32(opts.TopP),
		Stop:      opts.StopWords,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	switch {
	case opts.Temperature > 0:
		req.Temperature = float32(opts.Temperature)
	case o.temperature >= 0:
		req.Temperature = float32(o.temperature)
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	result, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(result.Choices) == 0 {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, ErrEmptyResponse)
		}
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{Choices: make([]*llms.ContentChoice, 0, len(result.Choices))}
	for _, c := range result.Choices {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		})
	}

	// The response is not streamed; hand the whole text to a streaming callback.
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(ctx, []byte(resp.Choices[0].Content)); err != nil {
			return nil, err
		}
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}
