package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cashback-intel/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestShouldContinue_TargetReached(t *testing.T) {
	t.Parallel()

	c := New(2, nil, 0.0015)
	ok, _ := c.ShouldContinue()
	assert.True(t, ok)

	c.RecordSuccess()
	c.RecordSuccess()
	ok, reason := c.ShouldContinue()
	assert.False(t, ok)
	assert.Equal(t, model.StopTargetReached, reason)
}

func TestShouldContinue_NilCeilingIsUnlimited(t *testing.T) {
	t.Parallel()

	c := New(100, nil, 0.0015)
	for i := 0; i < 50; i++ {
		c.Record(model.Usage{InputTokens: 10000, OutputTokens: 10000})
	}
	ok, _ := c.ShouldContinue()
	assert.True(t, ok)
	assert.Equal(t, Unlimited, c.Allowance())
	assert.Equal(t, int64(Unlimited), c.Remaining())
}

func TestShouldContinue_OvershootAtMostOneCall(t *testing.T) {
	t.Parallel()

	const perCall = 700
	ceiling := int64(2000)
	c := New(100, ptr(ceiling), 0.0015)

	calls := 0
	for {
		ok, reason := c.ShouldContinue()
		if !ok {
			assert.Equal(t, model.StopBudgetExceeded, reason)
			break
		}
		c.Record(model.Usage{InputTokens: 500, OutputTokens: perCall - 500})
		calls++
	}

	s := c.State()
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, s.TokensUsed, ceiling)
	assert.Less(t, s.TokensUsed-ceiling, int64(perCall))
	assert.Equal(t, 3, s.APICalls)
	assert.Zero(t, c.Remaining())
}

func TestRecord_AccumulatesCost(t *testing.T) {
	t.Parallel()

	c := New(5, nil, 0.0015)
	c.Record(model.Usage{InputTokens: 100, OutputTokens: 50, Cost: 0.001})
	c.Record(model.Usage{InputTokens: 200, OutputTokens: 50, Cost: 0.002})

	s := c.State()
	assert.Equal(t, int64(400), s.TokensUsed)
	assert.InDelta(t, 0.003, s.Cost, 1e-9)
	assert.Equal(t, 2, s.APICalls)
}

func TestAllowance(t *testing.T) {
	t.Parallel()

	// 2000 tokens at 0.0015 per call.
	assert.Equal(t, 1333, New(10, ptr(2000), 0.0015).Allowance())
	assert.Equal(t, 2, New(10, ptr(2000), 0.8).Allowance())
	assert.Equal(t, Unlimited, New(10, ptr(2000), 0).Allowance())
}

func TestState_IsCopy(t *testing.T) {
	t.Parallel()

	c := New(1, ptr(1000), 0.001)
	s := c.State()
	*s.Ceiling = 1
	assert.Equal(t, int64(1000), *c.State().Ceiling)
}

func TestSplitCeiling(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitCeiling(nil, 2))
	assert.Equal(t, int64(5000), *SplitCeiling(ptr(10000), 2))
	assert.Equal(t, int64(10000), *SplitCeiling(ptr(10000), 1))
}
