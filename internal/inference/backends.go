package inference

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/config"
	"github.com/sells-group/cashback-intel/internal/cost"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/resilience"
	"github.com/sells-group/cashback-intel/pkg/anthropic"
	"github.com/sells-group/cashback-intel/pkg/gemini"
	"github.com/sells-group/cashback-intel/pkg/openai"
)

// Models names the cheap and premium model of a backend.
type Models struct {
	Default string
	Premium string
}

func (m Models) pick(premium bool) string {
	if premium && m.Premium != "" {
		return m.Premium
	}
	return m.Default
}

type base struct {
	models Models
	calc   *cost.Calculator
	retry  resilience.RetryConfig
}

func newBase(name string, models Models, calc *cost.Calculator) base {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(name, "complete")
	return base{models: models, calc: calc, retry: retry}
}

// SetRetry replaces the retry policy for provider calls.
func (b *base) SetRetry(cfg resilience.RetryConfig) {
	if cfg.OnRetry == nil {
		cfg.OnRetry = b.retry.OnRetry
	}
	b.retry = cfg
}

func (b base) price(modelName string, in, out int64) model.Usage {
	u := model.Usage{InputTokens: in, OutputTokens: out}
	if b.calc == nil {
		return u
	}
	if !b.calc.Known(modelName) {
		zap.L().Debug("inference: no rate for model", zap.String("model", modelName))
	}
	return b.calc.Usage(modelName, u)
}

// transient marks retryable provider statuses so the retry policy sees them.
func transient(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

// OpenAIBackend talks to an OpenAI-compatible API.
type OpenAIBackend struct {
	base
	client openai.Client
}

// NewOpenAI creates an OpenAIBackend.
func NewOpenAI(client openai.Client, models Models, calc *cost.Calculator) *OpenAIBackend {
	return &OpenAIBackend{base: newBase(OpenAI, models, calc), client: client}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return OpenAI }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	modelName := b.models.pick(req.Premium)
	maxTokens := req.MaxTokens
	temp := req.Temperature

	resp, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*openai.ChatCompletionResponse, error) {
		r, err := b.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: modelName,
			Messages: []openai.Message{
				{Role: "system", Content: req.System},
				{Role: "user", Content: req.Prompt},
			},
			MaxTokens:   &maxTokens,
			Temperature: &temp,
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return nil, transient(err, apiErr.StatusCode)
			}
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "inference: openai complete")
	}

	return &Response{
		Text:  resp.Text(),
		Model: modelName,
		Usage: b.price(modelName, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens)),
	}, nil
}

// AnthropicBackend talks to the Anthropic Messages API.
type AnthropicBackend struct {
	base
	client anthropic.Client
}

// NewAnthropic creates an AnthropicBackend.
func NewAnthropic(client anthropic.Client, models Models, calc *cost.Calculator) *AnthropicBackend {
	return &AnthropicBackend{base: newBase(Anthropic, models, calc), client: client}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return Anthropic }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	modelName := b.models.pick(req.Premium)
	temp := req.Temperature

	reply, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*anthropic.Reply, error) {
		r, err := b.client.Complete(ctx, anthropic.Prompt{
			Model:       modelName,
			System:      req.System,
			User:        req.Prompt,
			MaxTokens:   int64(req.MaxTokens),
			Temperature: &temp,
		})
		if err != nil {
			return nil, transient(err, anthropic.StatusCode(err))
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "inference: anthropic complete")
	}

	return &Response{
		Text:  reply.Text,
		Model: modelName,
		Usage: b.price(modelName, reply.InputTokens, reply.OutputTokens),
	}, nil
}

// GeminiBackend talks to the Gemini API.
type GeminiBackend struct {
	base
	client gemini.Client
}

// NewGemini creates a GeminiBackend.
func NewGemini(client gemini.Client, models Models, calc *cost.Calculator) *GeminiBackend {
	return &GeminiBackend{base: newBase(Gemini, models, calc), client: client}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return Gemini }

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	modelName := b.models.pick(req.Premium)
	temp := float32(req.Temperature)

	resp, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		r, err := b.client.Generate(ctx, gemini.GenerateRequest{
			Model:       modelName,
			System:      req.System,
			Prompt:      req.Prompt,
			MaxTokens:   int32(req.MaxTokens),
			Temperature: &temp,
			JSON:        true,
		})
		if err != nil {
			return nil, transient(err, gemini.StatusCode(err))
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "inference: gemini complete")
	}

	return &Response{
		Text:  resp.Text,
		Model: modelName,
		Usage: b.price(modelName, resp.InputTokens, resp.OutputTokens),
	}, nil
}

// New builds the backend named by name from cfg.
func New(ctx context.Context, name string, cfg *config.Config, calc *cost.Calculator) (Backend, error) {
	switch name {
	case OpenAI:
		client := openai.NewClient(cfg.OpenAI.Key,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithHTTPClient(&http.Client{Timeout: httpTimeout(cfg)}),
		)
		return NewOpenAI(client, Models{cfg.OpenAI.Model, cfg.OpenAI.PremiumModel}, calc), nil
	case Anthropic:
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return NewAnthropic(client, Models{cfg.Anthropic.Model, cfg.Anthropic.PremiumModel}, calc), nil
	case Gemini:
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, err
		}
		return NewGemini(client, Models{cfg.Gemini.Model, cfg.Gemini.PremiumModel}, calc), nil
	}
	return nil, eris.Errorf("inference: unknown backend %q", name)
}

func httpTimeout(cfg *config.Config) time.Duration {
	if cfg.Crawl.TimeoutSecs > 0 {
		return 2 * time.Duration(cfg.Crawl.TimeoutSecs) * time.Second
	}
	return 60 * time.Second
}
