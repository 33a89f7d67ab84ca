// Package llm holds the thin layer between pipeline nodes and a langchaingo
// llms.Model: conversation messages, plain text generation and schema-guided
// structured output.
package llm

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Role is the speaker of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// Message is one turn of a conversation. Name tags the persona that produced an
// AI turn, e.g. "expert" in an interview.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Human returns a human turn.
func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AI returns an AI turn produced by the named persona.
func AI(name, content string) Message {
	return Message{Role: RoleAI, Name: name, Content: content}
}

// System returns a system turn.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func (m Message) prefix() string {
	switch m.Role {
	case RoleHuman:
		return "Human"
	case RoleAI:
		return "AI"
	case RoleSystem:
		return "System"
	}
	return string(m.Role)
}

// BufferString renders the conversation as a transcript, one "Human: ..." or
// "AI: ..." line per message.
func BufferString(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.prefix()+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func (m Message) chatType() llms.ChatMessageType {
	switch m.Role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAI:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// MessageContents converts a system prompt and a history into langchaingo messages.
// An empty system prompt is omitted.
func MessageContents(system string, history []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history)+1)
	if system != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, m := range history {
		out = append(out, llms.TextParts(m.chatType(), m.Content))
	}
	return out
}
