package model

import (
	"github.com/rotisserie/eris"
)

// CrawlTarget describes a site to crawl. It is created once per invocation.
type CrawlTarget struct {
	Site         string `json:"site" yaml:"site"`
	EntryPoint   string `json:"entry_point" yaml:"entry_point"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url"`
	DetailFilter string `json:"detail_filter,omitempty" yaml:"detail_filter"`
}

// URLState is the crawl lifecycle state of a candidate URL.
type URLState string

const (
	URLDiscovered URLState = "discovered"
	URLAdmitted   URLState = "admitted"
	URLValidated  URLState = "validated"
	URLAttempted  URLState = "attempted"
	URLSucceeded  URLState = "succeeded"
	URLFailed     URLState = "failed"
)

var urlTransitions = map[URLState]URLState{
	URLDiscovered: URLAdmitted,
	URLAdmitted:   URLValidated,
	URLValidated:  URLAttempted,
}

// CandidateURL is a discovered URL together with its lifecycle state.
type CandidateURL struct {
	URL   string   `json:"url"`
	State URLState `json:"state"`
}

// NewCandidate returns a candidate in the discovered state.
func NewCandidate(u string) *CandidateURL {
	return &CandidateURL{URL: u, State: URLDiscovered}
}

// Advance moves the candidate to next. States may not be skipped, so a URL
// can only be attempted once it has been admitted and validated.
func (c *CandidateURL) Advance(next URLState) error {
	if c.State == URLAttempted && (next == URLSucceeded || next == URLFailed) {
		c.State = next
		return nil
	}
	if want, ok := urlTransitions[c.State]; ok && want == next {
		c.State = next
		return nil
	}
	return eris.Errorf("model: illegal url transition %s -> %s for %s", c.State, next, c.URL)
}

// Terminal reports whether the candidate has finished its lifecycle.
func (c *CandidateURL) Terminal() bool {
	return c.State == URLSucceeded || c.State == URLFailed
}
