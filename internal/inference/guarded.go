package inference

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/resilience"
)

// Guarded fails fast with resilience.ErrCircuitOpen while the wrapped
// backend keeps failing.
type Guarded struct {
	Backend
	breaker *resilience.Breaker
}

// WithBreaker wraps b with a circuit breaker.
func WithBreaker(b Backend, cfg resilience.BreakerConfig) *Guarded {
	name := b.Name()
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("inference: circuit state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Guarded{Backend: b, breaker: resilience.NewBreaker(cfg)}
}

// Complete implements Backend.
func (g *Guarded) Complete(ctx context.Context, req Request) (*Response, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
		return g.Backend.Complete(ctx, req)
	})
}

// State returns the breaker state.
func (g *Guarded) State() resilience.CircuitState {
	return g.breaker.State()
}
