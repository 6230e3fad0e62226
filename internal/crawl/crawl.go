// Package crawl drives one crawl of a cashback site: discovery, admission,
// validation, then a sequential fetch and extract loop gated by the budget
// controller.
package crawl

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cashback-intel/internal/admission"
	"github.com/sells-group/cashback-intel/internal/budget"
	"github.com/sells-group/cashback-intel/internal/extract"
	"github.com/sells-group/cashback-intel/internal/fetcher"
	"github.com/sells-group/cashback-intel/internal/matcher"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/resilience"
)

// URLValidator drops URLs that are not live.
type URLValidator interface {
	Validate(ctx context.Context, urls []string) ([]string, error)
}

// ResultFunc is called for every successful extraction. An error aborts
// the crawl.
type ResultFunc func(ctx context.Context, r *model.ExtractionResult) error

// Deps are the collaborators of an Engine.
type Deps struct {
	Discoverer Discoverer
	Admission  *admission.Filter
	Validator  URLValidator
	Fetcher    fetcher.Fetcher
	Classifier *resilience.Classifier
	Chain      *extract.Chain
	Budget     *budget.Controller
	OnResult   ResultFunc
}

// Options tune an Engine.
type Options struct {
	// Delay is the courtesy pause between page fetches.
	Delay time.Duration
	// Priority reorders validated URLs toward these retailer names.
	Priority    []string
	MatchCutoff float64
}

// Report is the outcome of a crawl.
type Report struct {
	Target  model.CrawlTarget
	Results []*model.ExtractionResult
	Stats   *model.RunStats
	// TokensLeft is what remained under the token ceiling when the crawl
	// stopped, or budget.Unlimited.
	TokensLeft int64
}

// Engine runs crawls. It is not safe for concurrent use.
type Engine struct {
	deps  Deps
	opts  Options
	pacer *rate.Limiter
}

// New creates an Engine.
func New(deps Deps, opts Options) *Engine {
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	if opts.MatchCutoff <= 0 {
		opts.MatchCutoff = 0.7
	}
	return &Engine{deps: deps, opts: opts, pacer: rate.NewLimiter(limit, 1)}
}

// Run discovers, filters, validates and crawls target.
func (e *Engine) Run(ctx context.Context, target model.CrawlTarget) (*Report, error) {
	start := time.Now()
	report := &Report{Target: target, Stats: model.NewRunStats()}
	log := zap.L().With(zap.String("site", target.Site))

	urls, err := e.deps.Discoverer.Discover(ctx, target)
	if err != nil {
		return e.finish(report, start, stopFor(ctx)), eris.Wrap(err, "crawl: discover")
	}
	// Discoverers may repeat a URL; each candidate is tracked once.
	urls = dedup(urls)
	cands := make([]*model.CandidateURL, 0, len(urls))
	for _, u := range urls {
		cands = append(cands, model.NewCandidate(u))
	}
	report.Stats.Discovered = len(cands)

	admitted := cands[:0]
	for _, c := range cands {
		if e.deps.Admission != nil && !e.deps.Admission.Admit(c.URL) {
			report.Stats.Fail(model.FailAdmission)
			continue
		}
		if err := c.Advance(model.URLAdmitted); err != nil {
			return e.finish(report, start, model.StopFatal), err
		}
		admitted = append(admitted, c)
	}
	report.Stats.Admitted = len(admitted)

	admittedURLs := urlsOf(admitted)
	if len(e.opts.Priority) > 0 {
		admittedURLs = matcher.Prioritize(admittedURLs, e.opts.Priority, e.opts.MatchCutoff)
	}

	live := admittedURLs
	if e.deps.Validator != nil {
		live, err = e.deps.Validator.Validate(ctx, admittedURLs)
		if err != nil {
			return e.finish(report, start, stopFor(ctx)), eris.Wrap(err, "crawl: validate")
		}
	}
	for range len(admittedURLs) - len(live) {
		report.Stats.Fail(model.FailValidation)
	}

	byURL := make(map[string]*model.CandidateURL, len(admitted))
	for _, c := range admitted {
		byURL[c.URL] = c
	}
	validated := make([]*model.CandidateURL, 0, len(live))
	for _, u := range live {
		c, ok := byURL[u]
		if !ok {
			continue
		}
		if err := c.Advance(model.URLValidated); err != nil {
			return e.finish(report, start, model.StopFatal), err
		}
		validated = append(validated, c)
	}
	report.Stats.Validated = len(validated)

	log.Info("crawl: queue ready",
		zap.Int("discovered", report.Stats.Discovered),
		zap.Int("admitted", report.Stats.Admitted),
		zap.Int("validated", report.Stats.Validated),
	)
	return e.loop(ctx, report, start, validated)
}

// Crawl runs the fetch and extract loop over URLs that were already
// admitted and validated elsewhere.
func (e *Engine) Crawl(ctx context.Context, target model.CrawlTarget, urls []string) (*Report, error) {
	start := time.Now()
	report := &Report{Target: target, Stats: model.NewRunStats()}
	urls = dedup(urls)
	cands := make([]*model.CandidateURL, 0, len(urls))
	for _, u := range urls {
		cands = append(cands, &model.CandidateURL{URL: u, State: model.URLValidated})
	}
	report.Stats.Discovered = len(cands)
	report.Stats.Admitted = len(cands)
	report.Stats.Validated = len(cands)
	return e.loop(ctx, report, start, cands)
}

func (e *Engine) loop(ctx context.Context, report *Report, start time.Time, queue []*model.CandidateURL) (*Report, error) {
	stats := report.Stats
	for _, c := range queue {
		if ok, reason := e.deps.Budget.ShouldContinue(); !ok {
			return e.finish(report, start, reason), nil
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return e.finish(report, start, model.StopCancelled), eris.Wrap(err, "crawl: wait")
		}
		if err := c.Advance(model.URLAttempted); err != nil {
			return e.finish(report, start, model.StopFatal), err
		}
		stats.Processed++

		r, err := e.process(ctx, c.URL, stats)
		if err != nil {
			c.State = model.URLFailed
			if ctx.Err() != nil {
				return e.finish(report, start, model.StopCancelled), err
			}
			stats.Fail(model.FailFatal)
			return e.finish(report, start, model.StopFatal), err
		}
		if r == nil {
			_ = c.Advance(model.URLFailed)
			continue
		}
		_ = c.Advance(model.URLSucceeded)

		if e.deps.OnResult != nil {
			if err := e.deps.OnResult(ctx, r); err != nil {
				stats.Fail(model.FailFatal)
				return e.finish(report, start, model.StopFatal), eris.Wrap(err, "crawl: store result")
			}
		}
		e.deps.Budget.RecordSuccess()
		report.Results = append(report.Results, r)
		stats.Succeeded++

		zap.L().Info("crawl: extracted offer",
			zap.String("url", c.URL),
			zap.String("merchant", r.Merchant),
			zap.String("offer", r.Offer),
			zap.Float64("confidence", r.Confidence),
			zap.String("method", r.Method),
			zap.Int64("tokens", r.TokensUsed),
		)
	}

	reason := model.StopQueueExhausted
	if ok, r := e.deps.Budget.ShouldContinue(); !ok {
		reason = r
	}
	return e.finish(report, start, reason), nil
}

// process fetches and extracts one page. Skippable failures are counted in
// stats and yield a nil result; only fatal conditions return an error.
func (e *Engine) process(ctx context.Context, url string, stats *model.RunStats) (*model.ExtractionResult, error) {
	page, err := e.deps.Classifier.Fetch(ctx, e.deps.Fetcher, url)
	if err != nil {
		var fe *resilience.FetchError
		if errors.As(err, &fe) && fe.Verdict != resilience.VerdictFatal {
			stats.Fail(fe.Category)
			return nil, nil
		}
		return nil, err
	}

	ec, err := model.NewExtractionContext(url, page.Body)
	if err != nil {
		zap.L().Debug("crawl: unparseable page", zap.String("url", url), zap.Error(err))
		stats.Fail(model.FailExtractionEmpty)
		return nil, nil
	}

	r, err := e.deps.Chain.Run(ctx, ec)
	if err != nil {
		return nil, err
	}
	if r == nil {
		zap.L().Info("crawl: no offer extracted", zap.String("url", url), zap.Int("attempts", len(ec.Attempts)))
		stats.Fail(model.FailExtractionEmpty)
		return nil, nil
	}
	return r, nil
}

func (e *Engine) finish(report *Report, start time.Time, reason model.StopReason) *Report {
	st := e.deps.Budget.State()
	report.Stats.TokensUsed = st.TokensUsed
	report.Stats.APICalls = st.APICalls
	report.Stats.Cost = st.Cost
	report.Stats.StopReason = reason
	report.Stats.Duration = time.Since(start)
	report.TokensLeft = e.deps.Budget.Remaining()

	zap.L().Info("crawl: finished",
		zap.String("site", report.Target.Site),
		zap.String("stop_reason", string(reason)),
		zap.Int("processed", report.Stats.Processed),
		zap.Int("succeeded", report.Stats.Succeeded),
		zap.Int("failures", report.Stats.TotalFailures()),
		zap.Int64("tokens", st.TokensUsed),
		zap.Float64("cost", st.Cost),
		zap.Int64("tokens_left", report.TokensLeft),
	)
	return report
}

func stopFor(ctx context.Context) model.StopReason {
	if ctx.Err() != nil {
		return model.StopCancelled
	}
	return model.StopFatal
}

func urlsOf(cands []*model.CandidateURL) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	return out
}
