package admission

import (
	"net/url"
	"path"
	"strings"
)

// defaultDenyPatterns cover paths that never carry offer data.
var defaultDenyPatterns = []string{
	// error pages
	"/404*",
	"/error*",
	"*/not-found*",
	"*/notfound*",
	"*/error/*",
	// static assets
	"*.css",
	"*.js",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.svg",
	"*.ico",
	"*.webp",
	"*.woff",
	"*.woff2",
	"*.pdf",
	"*.zip",
	"*.xml",
	"*.json",
	// api and admin surfaces
	"/api/*",
	"/admin/*",
	"/wp-admin/*",
	"/wp-json/*",
	"/cdn-cgi/*",
	// listings
	"*/page/*",
	"*/tag/*",
	"*/tags/*",
	"*/category/*",
	"*/categories/*",
}

// PathMatcher filters URLs based on glob-style path patterns.
//
// Three pattern shapes are understood:
//   - "/blog/*" matches the path and every path below it
//   - "*.css" matches the final path segment
//   - "*/tag/*" matches the inner pattern at any segment boundary
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns.
// Falls back to the default deny list if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultDenyPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &PathMatcher{patterns: lowered}
}

// DefaultPatterns returns a copy of the built-in deny list.
func DefaultPatterns() []string {
	return append([]string(nil), defaultDenyPatterns...)
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any pattern. Unparseable URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathExcluded(u.Path)
}

func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pattern := range m.patterns {
		switch {
		case strings.HasPrefix(pattern, "*/"):
			if matchAnywhere(pattern[1:], urlPath) {
				return true
			}
		case strings.HasPrefix(pattern, "*."):
			if ok, _ := path.Match(pattern, path.Base(urlPath)); ok {
				return true
			}
		default:
			if matchSegmented(pattern, urlPath) {
				return true
			}
		}
	}
	return false
}

// matchAnywhere tries pattern against every suffix of urlPath that starts
// at a "/" boundary.
func matchAnywhere(pattern, urlPath string) bool {
	for i := 0; i < len(urlPath); i++ {
		if urlPath[i] != '/' {
			continue
		}
		if matchSegmented(pattern, urlPath[i:]) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/blog/*"
// matches both "/blog/post" and "/blog/deep/nested/path", and a trailing
// "*" on the last segment ("/404*") also matches anything below it.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	// "/404*" should also reject "/404/store".
	if strings.HasSuffix(pattern, "*") {
		if idx := strings.Index(urlPath[1:], "/"); idx >= 0 {
			head := urlPath[:idx+1]
			if ok, _ := path.Match(pattern, head); ok && strings.Count(pattern, "/") == 1 {
				return true
			}
		}
	}

	return false
}
