// Package extract turns a fetched page into a merchant offer by running an
// ordered chain of strategies, from model inference down to cheap DOM
// heuristics, and keeping the most confident answer.
package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Strategy extracts a result from a page. A nil result with a nil error
// means the strategy found nothing.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error)
}

// Learner records where a confident result's merchant name sat on the page.
type Learner interface {
	Observe(ctx context.Context, ec *model.ExtractionContext, r *model.ExtractionResult) (bool, error)
}

// contextLearner is implemented by strategies that learn from the chain's
// chosen result.
type contextLearner interface {
	Learn(ec *model.ExtractionContext, r *model.ExtractionResult)
}

// FatalError aborts the whole crawl rather than the current page.
type FatalError struct {
	Method string
	Err    error
}

func (e *FatalError) Error() string {
	return "extract: " + e.Method + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ChainConfig holds the chain thresholds.
type ChainConfig struct {
	Level model.Level
	// HighConfidence stops the chain once the best result exceeds it.
	HighConfidence float64
	// LearningThreshold is the minimum confidence fed to the learner; never
	// below 0.7.
	LearningThreshold float64
}

// Chain runs strategies in order and keeps the most confident result.
type Chain struct {
	cfg        ChainConfig
	strategies []Strategy
	learner    Learner
}

// NewChain creates a chain. learner may be nil.
func NewChain(cfg ChainConfig, learner Learner, strategies ...Strategy) *Chain {
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = 0.9
	}
	if cfg.LearningThreshold < 0.7 {
		cfg.LearningThreshold = 0.7
	}
	return &Chain{cfg: cfg, strategies: strategies, learner: learner}
}

// Run extracts the best result from ec. Every strategy invocation is
// recorded on ec.Attempts. Strategy errors are recorded and skipped unless
// they are fatal or the context is done.
func (c *Chain) Run(ctx context.Context, ec *model.ExtractionContext) (*model.ExtractionResult, error) {
	var best *model.ExtractionResult
	for _, s := range c.strategies {
		if best != nil && best.Confidence > c.cfg.HighConfidence {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := s.Extract(ctx, ec)
		ec.Record(s.Name(), r, err)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			zap.L().Debug("extract: strategy failed",
				zap.String("method", s.Name()),
				zap.String("url", ec.URL),
				zap.Error(err),
			)
			continue
		}
		if r == nil {
			continue
		}
		r.Confidence = model.ClampConfidence(r.Confidence)
		if best == nil || r.Confidence > best.Confidence {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}

	best.URL = ec.URL
	if best.Level == "" {
		best.Level = c.cfg.Level
	}

	if c.learner != nil && best.Confidence >= c.cfg.LearningThreshold {
		if _, err := c.learner.Observe(ctx, ec, best); err != nil {
			return nil, &FatalError{Method: model.MethodLearnedPattern, Err: eris.Wrap(err, "observe")}
		}
	}
	for _, s := range c.strategies {
		if cl, ok := s.(contextLearner); ok {
			cl.Learn(ec, best)
		}
	}
	return best, nil
}
