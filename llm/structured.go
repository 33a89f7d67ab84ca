package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/tmc/langchaingo/llms"
)

// Validator is implemented by structured outputs that check their own invariants.
type Validator interface {
	Validate() error
}

// StructuredOutputError is returned when a model reply cannot be turned into the
// requested type.
type StructuredOutputError struct {
	Type string
	Raw  string
	Err  error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("llm: structured output %s: %v", e.Type, e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// Schema returns the JSON schema used to instruct the model to produce a T.
func Schema[T any]() string {
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflected schemas always marshal.
		panic(err)
	}
	return string(data)
}

// GenerateStructured asks model for a JSON object matching T's schema and decodes it.
// Malformed JSON is repaired once before giving up.
func GenerateStructured[T any](ctx context.Context, model llms.Model, system string, history []Message, opts ...llms.CallOption) (T, error) {
	var zero T

	prompt := system + "\n\nRespond only with a JSON object that matches this JSON schema:\n" + Schema[T]()
	opts = append([]llms.CallOption{llms.WithJSONMode()}, opts...)

	text, err := GenerateText(ctx, model, prompt, history, opts...)
	if err != nil {
		return zero, err
	}
	return ParseStructured[T](text)
}

// ParseStructured decodes a model reply into T.
func ParseStructured[T any](text string) (T, error) {
	var out T
	typeName := fmt.Sprintf("%T", out)

	content := stripFences(text)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return out, &StructuredOutputError{Type: typeName, Raw: text, Err: err}
		}
		out = *new(T)
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return out, &StructuredOutputError{Type: typeName, Raw: text, Err: err}
		}
	}

	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, &StructuredOutputError{Type: typeName, Raw: text, Err: err}
		}
	}
	return out, nil
}

// stripFences removes a surrounding Markdown code fence and any prose around the
// outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
