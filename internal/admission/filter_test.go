package admission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Admit(t *testing.T) {
	t.Parallel()
	f := New()

	tests := []struct {
		name  string
		url   string
		admit bool
	}{
		{"store page", "https://www.shopback.com.au/store/myer", true},
		{"store page few params", "https://www.shopback.com.au/store/myer?utm_source=a&utm_medium=b", true},
		{"excess query params", "https://site/store/notfound?x=1&y=2&z=3&w=4&v=5&u=6", false},
		{"excess query params clean path", "https://site/store/myer?x=1&y=2&z=3&w=4&v=5&u=6", false},
		{"five params allowed", "https://site/store/myer?x=1&y=2&z=3&w=4&v=5", true},
		{"404 page", "https://site/404", false},
		{"404 nested", "https://site/404/store", false},
		{"not found slug", "https://site/store/not-found", false},
		{"stylesheet", "https://site/assets/main.css", false},
		{"image", "https://site/images/logo.PNG", false},
		{"api path", "https://site/api/v1/stores", false},
		{"admin path", "https://site/admin/login", false},
		{"pagination path", "https://site/stores/page/2", false},
		{"pagination query", "https://site/stores?page=2", false},
		{"tag listing", "https://site/blog/tag/deals", false},
		{"category listing", "https://site/category/fashion", false},
		{"tag prefix in slug", "https://site/store/tagheuer", true},
		{"fragment", "https://site/store/myer#offers", false},
		{"javascript", "javascript:void(0)", false},
		{"mailto", "mailto:help@site.com", false},
		{"relative", "/store/myer", false},
		{"empty", "", false},
		{"too long", "https://site/store/" + strings.Repeat("a", 250), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.admit, f.Admit(tt.url))
		})
	}
}

func TestFilter_Options(t *testing.T) {
	t.Parallel()

	f := New(WithMaxLength(30), WithMaxQueryParams(1), WithDenyPatterns([]string{"/help/*"}))

	assert.False(t, f.Admit("https://site/store/a-very-long-merchant-name"))
	assert.False(t, f.Admit("https://s/x?a=1&b=2"))
	assert.True(t, f.Admit("https://s/x?a=1"))
	assert.False(t, f.Admit("https://s/help/faq"))
	// Custom list replaces defaults.
	assert.True(t, f.Admit("https://s/a.css"))
}

func TestFilter_AdmitAll(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://site/store/a",
		"https://site/store/a",
		"https://site/api/x",
		"https://site/store/b",
		"mailto:x@y.z",
	}
	admitted, rejected := New().AdmitAll(urls)
	assert.Equal(t, []string{"https://site/store/a", "https://site/store/b"}, admitted)
	assert.Equal(t, 2, rejected)
}

func TestFilter_RepeatedParamsCounted(t *testing.T) {
	t.Parallel()
	assert.False(t, New().Admit("https://site/store/x?id=1&id=2&id=3&id=4&id=5&id=6"))
}

func TestPathMatcher_Shapes(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher([]string{"/blog/*", "*.PDF", "*/tag/*"})

	assert.True(t, m.IsExcluded("https://acme.com/blog"))
	assert.True(t, m.IsExcluded("https://acme.com/blog/2024/01/post"))
	assert.True(t, m.IsExcluded("https://acme.com/docs/report.pdf"))
	assert.True(t, m.IsExcluded("https://acme.com/news/tag/x"))
	assert.False(t, m.IsExcluded("https://acme.com/about"))
	assert.True(t, m.IsExcluded("://bad"))
}

func TestDefaultPatternsCopy(t *testing.T) {
	t.Parallel()
	p := DefaultPatterns()
	p[0] = "changed"
	assert.NotEqual(t, "changed", DefaultPatterns()[0])
}
