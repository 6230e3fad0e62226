package model

import "time"

// FetchedPage is the raw outcome of a single page fetch.
type FetchedPage struct {
	URL         string        `json:"url"`
	FinalURL    string        `json:"final_url"`
	StatusCode  int           `json:"status_code"`
	ContentType string        `json:"content_type,omitempty"`
	Body        string        `json:"-"`
	Duration    time.Duration `json:"duration"`
	Rendered    bool          `json:"rendered,omitempty"`
	Block       string        `json:"block,omitempty"`
}

// ProbeResult holds the outcome of an existence probe.
type ProbeResult struct {
	URL        string `json:"url"`
	Live       bool   `json:"live"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}
