// Package cost prices inference calls from reported token usage and holds the
// per-call estimates the budget controller plans with.
package cost

import "github.com/sells-group/cashback-intel/internal/model"

// Rates holds per-model pricing and per-call estimates.
type Rates struct {
	Models    map[string]ModelRate              `yaml:"models" mapstructure:"models"`
	Estimates map[model.Level]map[string]float64 `yaml:"estimates" mapstructure:"estimates"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for inference usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call returns the cost of one call to modelName. Unknown models cost 0.
func (c *Calculator) Call(modelName string, input, output int64) float64 {
	rate, ok := c.rates.Models[modelName]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Usage prices u for modelName and returns it with Cost filled in.
func (c *Calculator) Usage(modelName string, u model.Usage) model.Usage {
	u.Cost = c.Call(modelName, u.InputTokens, u.OutputTokens)
	return u
}

// Estimate returns the planned cost of one call at level on backend.
func (c *Calculator) Estimate(level model.Level, backend string) float64 {
	return c.rates.Estimates[level][backend]
}

// Known reports whether modelName has a rate.
func (c *Calculator) Known(modelName string) bool {
	_, ok := c.rates.Models[modelName]
	return ok
}

// DefaultRates returns the default pricing.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"gpt-3.5-turbo":              {Input: 1.50, Output: 2.00},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"gemini-2.5-flash":           {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":             {Input: 1.25, Output: 10.00},
		},
		Estimates: map[model.Level]map[string]float64{
			model.LevelBasic:         {"openai": 0.0008, "anthropic": 0.0010, "gemini": 0.0003},
			model.LevelStandard:      {"openai": 0.0015, "anthropic": 0.0020, "gemini": 0.0006},
			model.LevelComprehensive: {"openai": 0.0035, "anthropic": 0.0050, "gemini": 0.0015},
		},
	}
}
