// Package llmtest provides an in-memory llms.Model for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Call is one recorded request.
type Call struct {
	System  string
	Prompt  string
	Options llms.CallOptions
}

// Responder produces the reply for a request. system is the text of the system
// message, prompt the text of the remaining messages joined by newlines.
type Responder func(ctx context.Context, system, prompt string) (string, error)

// Model is a concurrency safe fake llms.Model.
type Model struct {
	respond Responder

	mu    sync.Mutex
	calls []Call
}

var _ llms.Model = (*Model)(nil)

// New returns a model answering with respond.
func New(respond Responder) *Model {
	return &Model{respond: respond}
}

// Scripted returns a model that replays replies in order and repeats the last one.
func Scripted(replies ...string) *Model {
	var mu sync.Mutex
	i := 0
	return New(func(context.Context, string, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return "", nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	})
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var system string
	var prompt []string
	for _, msg := range messages {
		var text strings.Builder
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				text.WriteString(t.Text)
			}
		}
		if msg.Role == llms.ChatMessageTypeSystem {
			system = text.String()
			continue
		}
		prompt = append(prompt, text.String())
	}
	call := Call{System: system, Prompt: strings.Join(prompt, "\n"), Options: opts}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	reply, err := m.respond(ctx, call.System, call.Prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply, StopReason: "stop"}}}, nil
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the recorded requests.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
