// Package resilience classifies fetch outcomes, retries transient failures
// with backoff, and guards inference backends with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Verdict is the classifier's decision for one fetch outcome.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictRetryable
	VerdictSkip
	VerdictFatal
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "OK"
	case VerdictRetryable:
		return "RETRYABLE"
	case VerdictSkip:
		return "SKIP"
	case VerdictFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of one fetch attempt. Attempt is 1-based and
// MaxRetries is the total number of attempts allowed.
type Outcome struct {
	Err        error
	StatusCode int
	Body       string
	// Block is the fetcher's anti-bot verdict for a page it could not render.
	Block      string
	Attempt    int
	MaxRetries int
}

func (o Outcome) final() bool {
	return o.MaxRetries > 0 && o.Attempt >= o.MaxRetries
}

// Decision pairs a verdict with the failure category it is counted under.
type Decision struct {
	Verdict  Verdict
	Category model.FailureCategory
}

// DefaultErrorPhrases identify placeholder pages served with a 200.
var DefaultErrorPhrases = []string{
	"store not found",
	"page not found",
	"no longer available",
	"temporarily unavailable",
	"access denied",
	"404",
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	RateLimitDelay   time.Duration
	MinContentLength int
	ErrorPhrases     []string
}

// DefaultClassifierConfig returns the crawl defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MaxRetries:       3,
		BaseBackoff:      time.Second,
		MaxBackoff:       30 * time.Second,
		RateLimitDelay:   5 * time.Second,
		MinContentLength: 500,
		ErrorPhrases:     DefaultErrorPhrases,
	}
}

// FromCrawlSettings converts crawl config values to a ClassifierConfig.
// Non-positive values keep the defaults.
func FromCrawlSettings(maxRetries, backoffMillis, maxBackoffMillis, rateLimitDelaySecs, minContentLength int) ClassifierConfig {
	cfg := DefaultClassifierConfig()
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	if backoffMillis > 0 {
		cfg.BaseBackoff = time.Duration(backoffMillis) * time.Millisecond
	}
	if maxBackoffMillis > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMillis) * time.Millisecond
	}
	if rateLimitDelaySecs > 0 {
		cfg.RateLimitDelay = time.Duration(rateLimitDelaySecs) * time.Second
	}
	if minContentLength > 0 {
		cfg.MinContentLength = minContentLength
	}
	return cfg
}

// Classifier maps fetch outcomes to verdicts.
type Classifier struct {
	cfg     ClassifierConfig
	phrases []string
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.ErrorPhrases == nil {
		cfg.ErrorPhrases = def.ErrorPhrases
	}
	phrases := make([]string, len(cfg.ErrorPhrases))
	for i, p := range cfg.ErrorPhrases {
		phrases[i] = strings.ToLower(p)
	}
	return &Classifier{cfg: cfg, phrases: phrases, sleep: Sleep}
}

// MaxRetries returns the configured attempt limit.
func (c *Classifier) MaxRetries() int {
	return c.cfg.MaxRetries
}

// Classify returns the verdict for o.
func (c *Classifier) Classify(o Outcome) Verdict {
	return c.Decide(o).Verdict
}

// Decide returns the verdict for o along with the category a SKIP or FATAL
// is counted under.
func (c *Classifier) Decide(o Outcome) Decision {
	if o.Err != nil {
		if errors.Is(o.Err, context.Canceled) {
			return Decision{VerdictFatal, model.FailFatal}
		}
		if isNetworkError(o.Err) {
			return c.retryOrSkip(o, model.FailRetryExhausted)
		}
		return c.retryOrSkip(o, model.FailUnclassified)
	}

	switch code := o.StatusCode; {
	case code == http.StatusInternalServerError, code == http.StatusTooManyRequests:
		return c.retryOrSkip(o, model.FailRetryExhausted)
	case code == http.StatusNotFound:
		return Decision{VerdictSkip, model.FailNotFound}
	case code == http.StatusForbidden:
		return Decision{VerdictSkip, model.FailForbidden}
	case code < 200 || code > 299:
		return Decision{VerdictSkip, model.FailStatus}
	}

	if o.Block != "" {
		return Decision{VerdictSkip, model.FailContent}
	}
	if len(strings.TrimSpace(o.Body)) < c.cfg.MinContentLength || c.looksLikeErrorPage(o.Body) {
		return Decision{VerdictSkip, model.FailContent}
	}
	return Decision{Verdict: VerdictOK}
}

func (c *Classifier) retryOrSkip(o Outcome, exhausted model.FailureCategory) Decision {
	if o.final() {
		return Decision{VerdictSkip, exhausted}
	}
	return Decision{VerdictRetryable, exhausted}
}

// looksLikeErrorPage matches error phrases against the page title, and against
// the whole body only for small pages where boilerplate dominates.
func (c *Classifier) looksLikeErrorPage(body string) bool {
	lower := strings.ToLower(body)
	haystack := pageTitle(lower)
	if len(lower) <= smallPageBytes {
		haystack = lower
	}
	if haystack == "" {
		return false
	}
	for _, p := range c.phrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before retrying after the given 1-based attempt.
// A 429 adds the fixed rate-limit delay.
func (c *Classifier) Backoff(attempt, statusCode int) time.Duration {
	d := ExponentialBackoff(c.cfg.BaseBackoff, c.cfg.MaxBackoff, attempt-1)
	if statusCode == http.StatusTooManyRequests {
		d += c.cfg.RateLimitDelay
	}
	return d
}

const smallPageBytes = 4096

func pageTitle(lowerBody string) string {
	start := strings.Index(lowerBody, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lowerBody[start:], ">")
	if open < 0 {
		return ""
	}
	rest := lowerBody[start+open+1:]
	end := strings.Index(rest, "</title>")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
