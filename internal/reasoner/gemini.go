package reasoner

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini uses the native structured-output mode: the schema is sent as the
// response schema and the answer is a JSON document.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Reason(ctx context.Context, prompt Prompt, schema Schema) (map[string]any, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   GenaiSchema(schema),
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return nil, &Error{Op: "generate", Err: err}
	}

	obj, err := parseJSONObject(resp.Text())
	if err != nil {
		return nil, &Error{Op: "parse", Err: err}
	}
	return obj, nil
}

func (g *Gemini) Ping(ctx context.Context) error {
	if g.client == nil {
		return ErrUnavailable
	}
	return nil
}

// GenaiSchema converts a Schema into the genai response schema.
func GenaiSchema(s Schema) *genai.Schema {
	return genaiObject(s.Description, s.Fields)
}

func genaiObject(description string, fields []Field) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: description,
		Properties:  make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		out.Properties[f.Name] = genaiField(f)
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}

func genaiField(f Field) *genai.Schema {
	switch f.Type {
	case TypeObject:
		return genaiObject(f.Description, f.Fields)
	case TypeArray:
		items := Field{Type: TypeString}
		if f.Items != nil {
			items = *f.Items
		}
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: f.Description,
			Items:       genaiField(items),
		}
	}

	out := &genai.Schema{Description: f.Description}
	switch f.Type {
	case TypeInteger:
		out.Type = genai.TypeInteger
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(f.Enum) > 0 {
		out.Enum = f.Enum
		out.Format = "enum"
	}
	return out
}
