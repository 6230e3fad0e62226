package resilience

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/fetcher"
	"github.com/sells-group/cashback-intel/internal/model"
)

// Fetch retrieves url through f, retrying RETRYABLE outcomes with backoff.
// It returns the page on success or a *FetchError carrying the verdict and
// failure category. Transport failures never escape as anything else.
func (c *Classifier) Fetch(ctx context.Context, f fetcher.Fetcher, url string) (*model.FetchedPage, error) {
	log := zap.L().With(zap.String("url", url))

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: url, Verdict: VerdictFatal, Category: model.FailFatal, Attempts: attempt - 1, Err: err}
		}

		page, err := f.Fetch(ctx, url)
		out := Outcome{Err: err, Attempt: attempt, MaxRetries: c.cfg.MaxRetries}
		if page != nil {
			out.StatusCode = page.StatusCode
			out.Body = page.Body
			out.Block = page.Block
		}

		d := c.Decide(out)
		switch d.Verdict {
		case VerdictOK:
			return page, nil

		case VerdictRetryable:
			wait := c.Backoff(attempt, out.StatusCode)
			log.Debug("resilience: retrying fetch",
				zap.Int("attempt", attempt),
				zap.Int("status", out.StatusCode),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, &FetchError{URL: url, Verdict: VerdictFatal, Category: model.FailFatal, Attempts: attempt, Err: serr}
			}

		default:
			fe := &FetchError{
				URL:        url,
				Verdict:    d.Verdict,
				Category:   d.Category,
				StatusCode: out.StatusCode,
				Attempts:   attempt,
				Err:        err,
			}
			if d.Category == model.FailUnclassified {
				log.Warn("resilience: unclassified fetch failure", zap.Int("attempts", attempt), zap.Error(err))
			} else {
				log.Info("resilience: skipping url",
					zap.String("verdict", d.Verdict.String()),
					zap.String("category", string(d.Category)),
					zap.Int("status", out.StatusCode),
				)
			}
			return nil, fe
		}
	}
}
