// Package validate confirms that admitted URLs are live before the crawl
// spends a fetch on them.
package validate

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cashback-intel/internal/fetcher"
)

const (
	DefaultConcurrency  = 10
	DefaultProbeTimeout = 10 * time.Second
)

// Validator runs bounded concurrent liveness probes.
type Validator struct {
	prober      fetcher.Prober
	concurrency int
	timeout     time.Duration
}

// New creates a Validator. Non-positive values select the defaults.
func New(prober fetcher.Prober, concurrency int, timeout time.Duration) *Validator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Validator{prober: prober, concurrency: concurrency, timeout: timeout}
}

// Validate returns the live subset of urls in input order. Probe errors and
// non-success statuses drop the URL without failing the batch; only a
// cancelled ctx is returned as an error.
func (v *Validator) Validate(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	live := make([]bool, len(urls))
	var dropped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			pctx, cancel := context.WithTimeout(gctx, v.timeout)
			defer cancel()

			res, err := v.prober.Probe(pctx, u)
			if err != nil || res == nil || !res.Live {
				dropped.Add(1)
				fields := []zap.Field{zap.String("url", u), zap.Error(err)}
				if res != nil {
					fields = append(fields, zap.Int("status", res.StatusCode))
				}
				zap.L().Debug("validate: dropping url", fields...)
				return nil
			}
			live[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(urls))
	for i, ok := range live {
		if ok {
			out = append(out, urls[i])
		}
	}

	zap.L().Info("validate: probes complete",
		zap.Int("probed", len(urls)),
		zap.Int("live", len(out)),
		zap.Int64("dropped", dropped.Load()),
	)
	return out, nil
}
