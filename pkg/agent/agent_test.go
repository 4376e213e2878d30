package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/llms"
)

// fakeProvider returns canned text without touching the network.
type fakeProvider struct {
	text    string
	err     error
	lastReq *llms.Request
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Close() error  { return nil }

func (f *fakeProvider) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Response{Text: f.text, StopReason: "end_turn"}, nil
}

func writerConfig() *config.AgentConfig {
	return &config.AgentConfig{
		Name:        "caption_writer",
		Description: "writes captions",
		Instruction: "You write platform-ready captions and hashtags.",
	}
}

func TestTypedAgent_DecodesOutput(t *testing.T) {
	provider := &fakeProvider{text: `{"text":"watch this","hashtags":["go","video"]}`}

	a, err := New(writerConfig(), provider)
	require.NoError(t, err)

	out, err := a.Execute(context.Background(), &Input{Topic: "go generics"})
	require.NoError(t, err)

	assert.Equal(t, "watch this", out.Values["text"])
	assert.Len(t, out.Values["hashtags"], 2)

	// The schema travels with the model request.
	require.NotNil(t, provider.lastReq.ResponseSchema)
	assert.Equal(t, "object", provider.lastReq.ResponseSchema["type"])
}

func TestTypedAgent_RejectsMalformedOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "not json", text: "sure, here is your caption!"},
		{name: "unknown field", text: `{"text":"x","hashtags":[],"emoji":"😀"}`},
		{name: "wrong type", text: `{"text":"x","hashtags":"golang"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(writerConfig(), &fakeProvider{text: tt.text})
			require.NoError(t, err)

			_, err = a.Execute(context.Background(), &Input{Topic: "go generics"})
			require.Error(t, err)

			var outErr *OutputValidationError
			require.ErrorAs(t, err, &outErr)
			assert.Equal(t, "caption_writer", outErr.Agent)
			assert.Equal(t, tt.text, outErr.Raw)
		})
	}
}

func TestAgent_InputValidationFailsFast(t *testing.T) {
	provider := &fakeProvider{text: "{}"}
	a, err := New(writerConfig(), provider)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &Input{Topic: "   "})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "topic", valErr.Field)
	assert.Nil(t, provider.lastReq, "model must not be called on invalid input")
}

func TestFreeformAgent(t *testing.T) {
	cfg := &config.AgentConfig{Name: "custom", Instruction: "do things"}
	a, err := New(cfg, &fakeProvider{text: "freeform answer"})
	require.NoError(t, err)

	out, err := a.Execute(context.Background(), &Input{Topic: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "freeform answer", out.Values["text"])
}

func TestAgent_PropagatesProviderError(t *testing.T) {
	provErr := errors.New("rate limited")
	a, err := New(writerConfig(), &fakeProvider{err: provErr})
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &Input{Topic: "go"})
	require.ErrorIs(t, err, provErr)
}

func TestGenerateSchema_RequiredFields(t *testing.T) {
	schema, err := generateSchema[Caption]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "text")
	assert.Contains(t, required, "hashtags")
	assert.NotContains(t, required, "call_to_action")
}

func TestUpstreamValuesReachThePrompt(t *testing.T) {
	provider := &fakeProvider{text: `{"text":"x","hashtags":[]}`}
	a, err := New(writerConfig(), provider)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), &Input{
		Topic:  "go generics",
		Values: map[string]any{"script_writer": map[string]any{"title": "Generics in 60s"}},
	})
	require.NoError(t, err)

	require.Len(t, provider.lastReq.Messages, 1)
	assert.Contains(t, provider.lastReq.Messages[0].Content, "Generics in 60s")
}
