// Package inference adapts chat completion providers to a single Backend
// interface with per-level token limits, model selection and cost accounting.
package inference

import (
	"context"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Backend identifiers.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Gemini    = "gemini"
)

// Backends returns the supported backend identifiers.
func Backends() []string {
	return []string{OpenAI, Anthropic, Gemini}
}

// Request is one system + user prompt exchange.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Premium selects the backend's stronger model.
	Premium bool
}

// Response is the raw model output with priced usage.
type Response struct {
	Text  string
	Model string
	Usage model.Usage
}

// Backend sends prompts to an inference provider. Output may be malformed;
// parsing is the caller's concern.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// LevelSettings are the generation parameters for an intelligence level.
type LevelSettings struct {
	MaxTokens   int
	Temperature float64
	Premium     bool
}

// Settings returns the generation parameters for level.
func Settings(level model.Level) LevelSettings {
	switch level {
	case model.LevelBasic:
		return LevelSettings{MaxTokens: 150, Temperature: 0.1}
	case model.LevelComprehensive:
		return LevelSettings{MaxTokens: 1500, Temperature: 0.2, Premium: true}
	default:
		return LevelSettings{MaxTokens: 500, Temperature: 0.2}
	}
}
