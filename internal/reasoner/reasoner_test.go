package reasoner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"github.com/rahul/scout/internal/observability"
)

var planSchema = Schema{
	Name:        "action_plan",
	Description: "Choose the next browser action.",
	Fields: []Field{
		{Name: "action", Type: TypeString, Required: true, Enum: []string{"OPEN_URL", "SEARCH"}},
		{Name: "target", Type: TypeString, Required: true},
		{Name: "confidence", Type: TypeNumber},
		{Name: "tags", Type: TypeArray, Items: &Field{Type: TypeString}},
		{Name: "meta", Type: TypeObject, Fields: []Field{
			{Name: "attempts", Type: TypeInteger, Required: true},
		}},
	},
}

type funcReasoner func(ctx context.Context, p Prompt, s Schema) (map[string]any, error)

func (f funcReasoner) Reason(ctx context.Context, p Prompt, s Schema) (map[string]any, error) {
	return f(ctx, p, s)
}

func TestSchema_Validate(t *testing.T) {
	cases := []struct {
		name string
		obj  map[string]any
		ok   bool
	}{
		{"minimal", map[string]any{"action": "SEARCH", "target": "go"}, true},
		{"enum not enforced", map[string]any{"action": "CLICK", "target": "go"}, true},
		{"full", map[string]any{
			"action": "OPEN_URL", "target": "x", "confidence": 0.5,
			"tags": []any{"a", "b"}, "meta": map[string]any{"attempts": float64(2)},
		}, true},
		{"missing required", map[string]any{"action": "SEARCH"}, false},
		{"null required", map[string]any{"action": "SEARCH", "target": nil}, false},
		{"wrong type", map[string]any{"action": 3, "target": "x"}, false},
		{"bad item", map[string]any{"action": "SEARCH", "target": "x", "tags": []any{"a", 1}}, false},
		{"non integral", map[string]any{"action": "SEARCH", "target": "x", "meta": map[string]any{"attempts": 1.5}}, false},
		{"nested missing", map[string]any{"action": "SEARCH", "target": "x", "meta": map[string]any{}}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := planSchema.Validate(tc.obj)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidOutput)
			}
		})
	}
}

func TestSchema_JSONSchema(t *testing.T) {
	js := planSchema.JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"action", "target"}, js["required"])

	props := js["properties"].(map[string]any)
	action := props["action"].(map[string]any)
	assert.Equal(t, []string{"OPEN_URL", "SEARCH"}, action["enum"])

	tags := props["tags"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])

	meta := props["meta"].(map[string]any)
	assert.Equal(t, []string{"attempts"}, meta["required"])
}

func TestGenaiSchema(t *testing.T) {
	s := GenaiSchema(planSchema)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"action", "target"}, s.Required)
	assert.Equal(t, []string{"action", "target", "confidence", "tags", "meta"}, s.PropertyOrdering)
	assert.Equal(t, []string{"OPEN_URL", "SEARCH"}, s.Properties["action"].Enum)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["meta"].Properties["attempts"].Type)
}

func TestDecode(t *testing.T) {
	type plan struct {
		Action string `json:"action"`
		Target string `json:"target"`
	}
	r := funcReasoner(func(ctx context.Context, p Prompt, s Schema) (map[string]any, error) {
		return map[string]any{"action": "SEARCH", "target": "golang"}, nil
	})

	got, err := Decode[plan](context.Background(), r, Prompt{User: "q"}, planSchema)
	require.NoError(t, err)
	assert.Equal(t, plan{Action: "SEARCH", Target: "golang"}, got)

	_, err = Decode[plan](context.Background(), nil, Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGuard_ValidatesAndRecords(t *testing.T) {
	metrics := observability.NewMetrics()
	g := NewGuard(funcReasoner(func(ctx context.Context, p Prompt, s Schema) (map[string]any, error) {
		return map[string]any{"action": "SEARCH"}, nil
	}), GuardConfig{Component: "planner", Metrics: metrics})

	_, err := g.Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestGuard_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	g := NewGuard(funcReasoner(func(ctx context.Context, p Prompt, s Schema) (map[string]any, error) {
		<-release
		return nil, nil
	}), GuardConfig{Component: "planner", Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := g.Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuard_RecoversPanic(t *testing.T) {
	g := NewGuard(funcReasoner(func(ctx context.Context, p Prompt, s Schema) (map[string]any, error) {
		panic("boom")
	}), GuardConfig{Component: "planner"})

	_, err := g.Reason(context.Background(), Prompt{}, planSchema)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Error(), "boom")
}

func TestGuard_NilProvider(t *testing.T) {
	g := NewGuard(nil, GuardConfig{Component: "planner"})
	_, err := g.Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, g.Ping(context.Background()), ErrUnavailable)
}

type fakeModel struct {
	resp *llms.ContentResponse
	err  error
	opts llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, opt := range options {
		opt(&m.opts)
	}
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestLangChain_ToolCall(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "action_plan",
				Arguments: `{"action":"OPEN_URL","target":"https://www.github.com"}`,
			},
		}},
	}}}}

	obj, err := NewLangChain(model).Reason(context.Background(), Prompt{System: "s", User: "open github"}, planSchema)
	require.NoError(t, err)
	assert.Equal(t, "OPEN_URL", obj["action"])

	require.Len(t, model.opts.Tools, 1)
	assert.Equal(t, "action_plan", model.opts.Tools[0].Function.Name)
}

func TestLangChain_ContentFallback(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "```json\n{\"action\": \"SEARCH\", \"target\": \"ai news\"}\n```",
	}}}}

	obj, err := NewLangChain(model).Reason(context.Background(), Prompt{}, planSchema)
	require.NoError(t, err)
	assert.Equal(t, "ai news", obj["target"])
}

func TestLangChain_Errors(t *testing.T) {
	_, err := NewLangChain(&fakeModel{err: errors.New("rate limited")}).Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewLangChain(&fakeModel{resp: &llms.ContentResponse{}}).Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = NewLangChain(&fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "no idea"}}}}).
		Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = NewLangChain(nil).Reason(context.Background(), Prompt{}, planSchema)
	assert.ErrorIs(t, err, ErrUnavailable)
}
