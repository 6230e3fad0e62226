package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cashback-intel/internal/model"
)

func TestCall(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{
			name: "gpt-3.5 per-thousand pricing",
			model: "gpt-3.5-turbo", input: 1000, output: 150,
			// 1000*0.0015/1000 + 150*0.002/1000
			want: 0.0015 + 0.0003,
		},
		{
			name: "gpt-4o",
			model: "gpt-4o", input: 1000000, output: 100000,
			want: 2.50 + 1.00,
		},
		{
			name: "haiku",
			model: "claude-haiku-4-5-20251001", input: 1000000, output: 100000,
			want: 0.80 + 0.40,
		},
		{
			name: "gemini flash",
			model: "gemini-2.5-flash", input: 2000000, output: 0,
			want: 0.60,
		},
		{
			name: "unknown model returns 0",
			model: "mystery", input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name: "zero tokens returns 0",
			model: "gpt-4o",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Call(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	u := calc.Usage("gpt-3.5-turbo", model.Usage{InputTokens: 2000, OutputTokens: 500})
	assert.InDelta(t, 0.004, u.Cost, 1e-9)
	assert.Equal(t, int64(2500), u.Total())
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	assert.InDelta(t, 0.0008, calc.Estimate(model.LevelBasic, "openai"), 1e-9)
	assert.InDelta(t, 0.0020, calc.Estimate(model.LevelStandard, "anthropic"), 1e-9)
	assert.InDelta(t, 0.0015, calc.Estimate(model.LevelComprehensive, "gemini"), 1e-9)
	assert.Zero(t, calc.Estimate(model.LevelBasic, "unknown"))
	assert.Zero(t, calc.Estimate("deep", "openai"))
}

func TestKnown(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())
	assert.True(t, calc.Known("gpt-4o"))
	assert.False(t, calc.Known("gpt-5"))
}
