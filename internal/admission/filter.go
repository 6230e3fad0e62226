// Package admission rejects URLs that are not worth fetching before any
// network I/O happens.
package admission

import (
	"net/url"
	"strings"
)

const (
	DefaultMaxLength      = 200
	DefaultMaxQueryParams = 5
)

var deniedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "ftp:"}

// paginationParams mark listing pages when present in the query string.
var paginationParams = []string{"page", "p", "pg", "offset"}

// Filter is a pure, stateless URL admission check.
type Filter struct {
	matcher        *PathMatcher
	maxLength      int
	maxQueryParams int
}

// Option configures a Filter.
type Option func(*Filter)

// WithDenyPatterns replaces the default deny list.
func WithDenyPatterns(patterns []string) Option {
	return func(f *Filter) {
		f.matcher = NewPathMatcher(patterns)
	}
}

// WithMaxLength overrides the maximum URL length.
func WithMaxLength(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.maxLength = n
		}
	}
}

// WithMaxQueryParams overrides the maximum query parameter count.
func WithMaxQueryParams(n int) Option {
	return func(f *Filter) {
		if n >= 0 {
			f.maxQueryParams = n
		}
	}
}

// New creates a Filter with the default deny list and limits.
func New(opts ...Option) *Filter {
	f := &Filter{
		matcher:        NewPathMatcher(nil),
		maxLength:      DefaultMaxLength,
		maxQueryParams: DefaultMaxQueryParams,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Admit reports whether rawURL should proceed to validation.
func (f *Filter) Admit(rawURL string) bool {
	raw := strings.TrimSpace(rawURL)
	if raw == "" || len(raw) > f.maxLength {
		return false
	}

	lower := strings.ToLower(raw)
	for _, s := range deniedSchemes {
		if strings.HasPrefix(lower, s) {
			return false
		}
	}
	if strings.Contains(raw, "#") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	q := u.Query()
	if countParams(q) > f.maxQueryParams {
		return false
	}
	for _, p := range paginationParams {
		if q.Has(p) {
			return false
		}
	}

	return !f.matcher.isPathExcluded(u.Path)
}

// AdmitAll filters urls, preserving order and dropping duplicates.
// It returns the admitted URLs and the number rejected.
func (f *Filter) AdmitAll(urls []string) ([]string, int) {
	seen := make(map[string]struct{}, len(urls))
	admitted := make([]string, 0, len(urls))
	rejected := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if f.Admit(u) {
			admitted = append(admitted, u)
		} else {
			rejected++
		}
	}
	return admitted, rejected
}

func countParams(q url.Values) int {
	n := 0
	for _, vs := range q {
		if len(vs) == 0 {
			n++
			continue
		}
		n += len(vs)
	}
	return n
}
