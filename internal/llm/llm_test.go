package llm

import (
	"context"
	"errors"
	"testing"

	"chatbridge/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	got      []llms.MessageContent
	opts     llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.response, f.err
}

func (f *fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestGenerateSendsSingleUserMessage(t *testing.T) {
	fm := &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "你好"}}}}
	a := &modelAdapter{client: fm, model: "deepseek-chat"}

	out, err := a.Generate(context.Background(), "prompt", &middleware.LLMParams{Temperature: 0.7, MaxTokens: 3000})
	require.NoError(t, err)
	assert.Equal(t, "你好", out)

	require.Len(t, fm.got, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, fm.got[0].Role)
	assert.Equal(t, "deepseek-chat", fm.opts.Model)
	assert.Equal(t, 0.7, fm.opts.Temperature)
	assert.Equal(t, 3000, fm.opts.MaxTokens)
}

func TestGenerateParamsModelOverrides(t *testing.T) {
	fm := &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	a := &modelAdapter{client: fm, model: "base"}
	_, err := a.Generate(context.Background(), "p", &middleware.LLMParams{Model: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", fm.opts.Model)
}

func TestGenerateEmptyChoices(t *testing.T) {
	a := &modelAdapter{client: &fakeModel{response: &llms.ContentResponse{}}}
	_, err := a.Generate(context.Background(), "p", nil)
	assert.Error(t, err)
}

func TestNewAdapterUnknownProvider(t *testing.T) {
	_, err := NewAdapter(Options{Provider: "bard"})
	assert.Error(t, err)
}

func TestNewAdapterBuildsOpenAICompatible(t *testing.T) {
	a, err := NewAdapter(Options{Provider: ProviderDeepSeek, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, defaultDeepSeekModel, a.(*modelAdapter).model)

	a, err = NewAdapter(Options{Provider: ProviderOllama, BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaModel, a.(*modelAdapter).model)
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("CB_TEST_A", "")
	t.Setenv("CB_TEST_B", "b")
	assert.Equal(t, "x", firstEnv("x", "CB_TEST_B"))
	assert.Equal(t, "b", firstEnv("", "CB_TEST_A", "CB_TEST_B"))
	assert.Equal(t, "", firstEnv(""))
}
