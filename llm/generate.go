package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the model answers without any choice.
var ErrEmptyResponse = errors.New("llm: empty response")

// GenerateText sends the system prompt and history to model and returns the text of
// the first choice.
func GenerateText(ctx context.Context, model llms.Model, system string, history []Message, opts ...llms.CallOption) (string, error) {
	if model == nil {
		return "", errors.New("llm: nil model")
	}
	resp, err := model.GenerateContent(ctx, MessageContents(system, history), opts...)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
