package model

import "time"

// RunStatus represents the current state of a crawl run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusValidating  RunStatus = "validating"
	RunStatusCrawling    RunStatus = "crawling"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// StopReason explains why the crawl loop ended.
type StopReason string

const (
	StopTargetReached  StopReason = "target_reached"
	StopBudgetExceeded StopReason = "budget_exhausted"
	StopQueueExhausted StopReason = "queue_exhausted"
	StopCancelled      StopReason = "cancelled"
	StopFatal          StopReason = "fatal"
)

// FailureCategory attributes a dropped or failed URL.
type FailureCategory string

const (
	FailAdmission       FailureCategory = "admission_rejected"
	FailValidation      FailureCategory = "validation_dropped"
	FailNotFound        FailureCategory = "skipped_404"
	FailForbidden       FailureCategory = "skipped_403"
	FailStatus          FailureCategory = "skipped_status"
	FailContent         FailureCategory = "skipped_content"
	FailRetryExhausted  FailureCategory = "retry_exhausted"
	FailUnclassified    FailureCategory = "unclassified"
	FailExtractionEmpty FailureCategory = "extraction_empty"
	FailFatal           FailureCategory = "fatal"
)

// RunStats is the per-run accounting exposed at the end of a crawl.
type RunStats struct {
	Discovered int                     `json:"discovered"`
	Admitted   int                     `json:"admitted"`
	Validated  int                     `json:"validated"`
	Processed  int                     `json:"processed"`
	Succeeded  int                     `json:"succeeded"`
	Failures   map[FailureCategory]int `json:"failures"`
	TokensUsed int64                   `json:"tokens_used"`
	APICalls   int                     `json:"api_calls"`
	Cost       float64                 `json:"cost"`
	StopReason StopReason              `json:"stop_reason"`
	Duration   time.Duration           `json:"duration"`
}

// NewRunStats returns zeroed stats.
func NewRunStats() *RunStats {
	return &RunStats{Failures: make(map[FailureCategory]int)}
}

// Fail increments the counter for cat.
func (s *RunStats) Fail(cat FailureCategory) {
	if s.Failures == nil {
		s.Failures = make(map[FailureCategory]int)
	}
	s.Failures[cat]++
}

// TotalFailures sums all failure counters.
func (s *RunStats) TotalFailures() int {
	n := 0
	for _, v := range s.Failures {
		n += v
	}
	return n
}

// Run is one crawl invocation against a target.
type Run struct {
	ID        string      `json:"id"`
	Target    CrawlTarget `json:"target"`
	Level     Level       `json:"level"`
	Backend   string      `json:"backend"`
	Status    RunStatus   `json:"status"`
	Stats     *RunStats   `json:"stats,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BudgetState holds the process-scoped usage counters of one crawl.
type BudgetState struct {
	TokensUsed int64   `json:"tokens_used"`
	Cost       float64 `json:"cost"`
	APICalls   int     `json:"api_calls"`
	Successes  int     `json:"successes"`
	Target     int     `json:"target"`
	Ceiling    *int64  `json:"ceiling,omitempty"`
}

// Usage is the token accounting reported for one inference call.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
