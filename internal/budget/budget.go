// Package budget decides when a crawl stops: enough successes, token
// ceiling reached, or nothing left to try.
package budget

import (
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Unlimited is returned by Allowance when no ceiling is set.
const Unlimited = -1

// Controller owns the BudgetState of one crawl. It is not safe for
// concurrent use; the crawl loop is its only caller.
type Controller struct {
	state    model.BudgetState
	estimate float64
}

// New creates a Controller. A nil ceiling means no token limit. estimate is
// the planned cost of one inference call at the run's level and backend.
func New(target int, ceiling *int64, estimate float64) *Controller {
	c := &Controller{
		state:    model.BudgetState{Target: target},
		estimate: estimate,
	}
	if ceiling != nil {
		v := *ceiling
		c.state.Ceiling = &v
	}
	return c
}

// ShouldContinue reports whether another page may be processed. It is
// checked before every page, so usage overshoots the ceiling by at most the
// tokens of one call.
func (c *Controller) ShouldContinue() (bool, model.StopReason) {
	if c.state.Target > 0 && c.state.Successes >= c.state.Target {
		return false, model.StopTargetReached
	}
	if c.state.Ceiling != nil && c.state.TokensUsed >= *c.state.Ceiling {
		return false, model.StopBudgetExceeded
	}
	return true, ""
}

// Record adds the reported usage of one inference call.
func (c *Controller) Record(u model.Usage) {
	c.state.TokensUsed += u.Total()
	c.state.Cost += u.Cost
	c.state.APICalls++
}

// RecordSuccess counts one page that produced a result.
func (c *Controller) RecordSuccess() {
	c.state.Successes++
}

// Allowance estimates how many calls the ceiling covers at the planned
// per-call cost, or Unlimited without a ceiling.
func (c *Controller) Allowance() int {
	if c.state.Ceiling == nil {
		return Unlimited
	}
	if c.estimate <= 0 {
		return Unlimited
	}
	return int(float64(*c.state.Ceiling) / (c.estimate * 1000))
}

// Remaining returns the tokens left under the ceiling, or Unlimited.
func (c *Controller) Remaining() int64 {
	if c.state.Ceiling == nil {
		return Unlimited
	}
	if left := *c.state.Ceiling - c.state.TokensUsed; left > 0 {
		return left
	}
	return 0
}

// State returns a copy of the current counters.
func (c *Controller) State() model.BudgetState {
	s := c.state
	if s.Ceiling != nil {
		v := *s.Ceiling
		s.Ceiling = &v
	}
	return s
}

// LogPlan logs the target, ceiling and planned allowance.
func (c *Controller) LogPlan(level model.Level, backend string) {
	fields := []zap.Field{
		zap.String("level", string(level)),
		zap.String("backend", backend),
		zap.Int("target", c.state.Target),
		zap.Float64("estimated_cost_per_call", c.estimate),
	}
	if c.state.Ceiling != nil {
		fields = append(fields,
			zap.Int64("ceiling_tokens", *c.state.Ceiling),
			zap.Int("estimated_calls", c.Allowance()),
		)
	}
	zap.L().Info("budget: plan", fields...)
}

// SplitCeiling divides ceiling evenly across n sites. A nil ceiling stays nil.
func SplitCeiling(ceiling *int64, n int) *int64 {
	if ceiling == nil || n <= 1 {
		return ceiling
	}
	v := *ceiling / int64(n)
	return &v
}
