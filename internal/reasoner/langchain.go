package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LangChain asks a langchaingo model to call a single function tool whose
// parameters are the schema. Models that answer in plain text are accepted
// when the text holds a JSON object.
type LangChain struct {
	Model llms.Model
}

func NewLangChain(model llms.Model) *LangChain {
	return &LangChain{Model: model}
}

func (l *LangChain) Reason(ctx context.Context, prompt Prompt, schema Schema) (map[string]any, error) {
	if l.Model == nil {
		return nil, ErrUnavailable
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(prompt.System)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt.User)},
		},
	}

	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.JSONSchema(),
			},
		},
	}

	resp, err := l.Model.GenerateContent(ctx, messages, llms.WithTools(tools))
	if err != nil {
		return nil, &Error{Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Op: "generate", Err: fmt.Errorf("%w: no choices", ErrInvalidOutput)}
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != schema.Name {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &obj); err != nil {
			return nil, &Error{Op: "parse", Err: fmt.Errorf("%w: %v", ErrInvalidOutput, err)}
		}
		return obj, nil
	}

	obj, err := parseJSONObject(choice.Content)
	if err != nil {
		return nil, &Error{Op: "parse", Err: err}
	}
	return obj, nil
}

func (l *LangChain) Ping(ctx context.Context) error {
	if l.Model == nil {
		return ErrUnavailable
	}
	return nil
}

// parseJSONObject extracts the outermost JSON object from free text,
// tolerating markdown code fences around it.
func parseJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrInvalidOutput)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return obj, nil
}
