package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/inference"
	"github.com/sells-group/cashback-intel/internal/model"
)

// UsageRecorder receives priced usage for every completed inference call,
// whether or not its output parses.
type UsageRecorder interface {
	Record(u model.Usage)
}

// InferenceStrategy asks a language model to read the page's salient text.
type InferenceStrategy struct {
	backend        inference.Backend
	level          model.Level
	maxInputTokens int
	recorder       UsageRecorder
}

// NewInferenceStrategy creates an inference strategy. recorder may be nil.
func NewInferenceStrategy(backend inference.Backend, level model.Level, maxInputTokens int, recorder UsageRecorder) *InferenceStrategy {
	return &InferenceStrategy{
		backend:        backend,
		level:          level,
		maxInputTokens: maxInputTokens,
		recorder:       recorder,
	}
}

// Name implements Strategy.
func (s *InferenceStrategy) Name() string { return model.MethodInference }

// Extract implements Strategy.
func (s *InferenceStrategy) Extract(ctx context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error) {
	content, estimate := SalientText(ec.Raw, s.maxInputTokens)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	settings := inference.Settings(s.level)
	resp, err := s.backend.Complete(ctx, inference.Request{
		System:      SystemMessage(s.level),
		Prompt:      BuildPrompt(s.level, ec.URL, content),
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		Premium:     settings.Premium,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s inference", s.backend.Name())
	}
	if s.recorder != nil {
		s.recorder.Record(resp.Usage)
	}

	r := ParseResponse(s.level, resp.Text)
	if r == nil {
		zap.L().Debug("extract: unusable inference output",
			zap.String("url", ec.URL),
			zap.String("model", resp.Model),
			zap.Int("input_estimate", estimate),
		)
		return nil, nil
	}

	r.TokensUsed = resp.Usage.Total()
	r.Cost = resp.Usage.Cost
	if s.level == model.LevelComprehensive {
		r.Fields["extraction_metadata"] = map[string]any{
			"method":             "AI_Comprehensive",
			"tokens_used":        r.TokensUsed,
			"cost":               r.Cost,
			"url":                ec.URL,
			"scraped_at":         r.ScrapedAt.Format("2006-01-02T15:04:05Z07:00"),
			"intelligence_level": string(s.level),
		}
	}
	return r, nil
}
