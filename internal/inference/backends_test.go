package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cashback-intel/internal/config"
	"github.com/sells-group/cashback-intel/internal/cost"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/resilience"
	"github.com/sells-group/cashback-intel/pkg/anthropic"
	"github.com/sells-group/cashback-intel/pkg/gemini"
	"github.com/sells-group/cashback-intel/pkg/openai"
)

type mockOpenAI struct{ mock.Mock }

func (m *mockOpenAI) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*openai.ChatCompletionResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) Complete(ctx context.Context, p anthropic.Prompt) (*anthropic.Reply, error) {
	args := m.Called(ctx, p)
	if v := args.Get(0); v != nil {
		return v.(*anthropic.Reply), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGemini struct{ mock.Mock }

func (m *mockGemini) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*gemini.GenerateResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func chatResponse(text string, in, out int) *openai.ChatCompletionResponse {
	return &openai.ChatCompletionResponse{
		Choices: []openai.Choice{{Message: openai.Message{Role: "assistant", Content: text}}},
		Usage:   openai.Usage{PromptTokens: in, CompletionTokens: out},
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelSettings{MaxTokens: 150, Temperature: 0.1}, Settings(model.LevelBasic))
	assert.Equal(t, LevelSettings{MaxTokens: 500, Temperature: 0.2}, Settings(model.LevelStandard))
	assert.Equal(t, LevelSettings{MaxTokens: 1500, Temperature: 0.2, Premium: true}, Settings(model.LevelComprehensive))
}

func TestOpenAIBackend_Complete(t *testing.T) {
	t.Parallel()

	client := &mockOpenAI{}
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r openai.ChatCompletionRequest) bool {
		return r.Model == "gpt-3.5-turbo" && *r.MaxTokens == 150 && len(r.Messages) == 2 && r.Messages[0].Role == "system"
	})).Return(chatResponse(`{"merchant_name":"Myer"}`, 1000, 150), nil).Once()

	b := NewOpenAI(client, Models{"gpt-3.5-turbo", "gpt-4o"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "page", MaxTokens: 150, Temperature: 0.1})
	require.NoError(t, err)

	assert.Equal(t, OpenAI, b.Name())
	assert.Equal(t, `{"merchant_name":"Myer"}`, resp.Text)
	assert.Equal(t, "gpt-3.5-turbo", resp.Model)
	assert.Equal(t, int64(1150), resp.Usage.Total())
	assert.InDelta(t, 0.0018, resp.Usage.Cost, 1e-9)
	client.AssertExpectations(t)
}

func TestOpenAIBackend_PremiumModel(t *testing.T) {
	t.Parallel()

	client := &mockOpenAI{}
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r openai.ChatCompletionRequest) bool {
		return r.Model == "gpt-4o"
	})).Return(chatResponse("{}", 10, 10), nil).Once()

	b := NewOpenAI(client, Models{"gpt-3.5-turbo", "gpt-4o"}, nil)
	resp, err := b.Complete(context.Background(), Request{Premium: true, MaxTokens: 1500})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Zero(t, resp.Usage.Cost)
}

func TestOpenAIBackend_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	client := &mockOpenAI{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &openai.APIError{StatusCode: 429, Body: "slow down"}).Once()
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse("{}", 1, 1), nil).Once()

	b := NewOpenAI(client, Models{Default: "gpt-3.5-turbo"}, nil)
	b.SetRetry(fastRetry)
	_, err := b.Complete(context.Background(), Request{MaxTokens: 10})
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "ChatCompletion", 2)
}

func TestOpenAIBackend_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	client := &mockOpenAI{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &openai.APIError{StatusCode: 401, Body: "bad key"})

	b := NewOpenAI(client, Models{Default: "gpt-3.5-turbo"}, nil)
	b.SetRetry(fastRetry)
	_, err := b.Complete(context.Background(), Request{MaxTokens: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference: openai complete")
	client.AssertNumberOfCalls(t, "ChatCompletion", 1)
}

func TestAnthropicBackend_Complete(t *testing.T) {
	t.Parallel()

	client := &mockAnthropic{}
	client.On("Complete", mock.Anything, mock.MatchedBy(func(p anthropic.Prompt) bool {
		return p.Model == "claude-sonnet-4-5-20250929" && p.System == "sys" && p.User == "p" && p.MaxTokens == 1500
	})).Return(&anthropic.Reply{Text: `{"ok":true}`, InputTokens: 1000000}, nil)

	b := NewAnthropic(client, Models{"claude-haiku-4-5-20251001", "claude-sonnet-4-5-20250929"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "p", MaxTokens: 1500, Premium: true})
	require.NoError(t, err)
	assert.Equal(t, Anthropic, b.Name())
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.InDelta(t, 3.0, resp.Usage.Cost, 1e-9)
}

func TestGeminiBackend_Complete(t *testing.T) {
	t.Parallel()

	client := &mockGemini{}
	client.On("Generate", mock.Anything, mock.MatchedBy(func(r gemini.GenerateRequest) bool {
		return r.Model == "gemini-2.5-flash" && r.MaxTokens == 500 && r.JSON
	})).Return(&gemini.GenerateResponse{Text: "{}", InputTokens: 100, OutputTokens: 20}, nil)

	b := NewGemini(client, Models{"gemini-2.5-flash", "gemini-2.5-pro"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := b.Complete(context.Background(), Request{MaxTokens: 500, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, Gemini, b.Name())
	assert.Equal(t, int64(120), resp.Usage.Total())
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.OpenAI.Key = "sk-test"
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.OpenAI.Model = "gpt-3.5-turbo"
	cfg.Anthropic.Key = "ak-test"
	cfg.Gemini.Key = "gk-test"

	for _, name := range Backends() {
		b, err := New(context.Background(), name, cfg, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, b.Name())
	}

	_, err := New(context.Background(), "llama", cfg, nil)
	assert.Error(t, err)
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	client := &mockOpenAI{}
	client.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("invalid request"))

	inner := NewOpenAI(client, Models{Default: "gpt-3.5-turbo"}, nil)
	g := WithBreaker(inner, resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := g.Complete(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, g.State())

	_, err := g.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	client.AssertNumberOfCalls(t, "ChatCompletion", 2)
	assert.Equal(t, OpenAI, g.Name())
}
