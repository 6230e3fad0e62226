package dom

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<html><head><title>Myer Cashback</title><script>var m = "Myer";</script></head>
<body>
  <div class="hero main" id="store-hero">
    <h1 class="merchant-name">Myer</h1>
    <span class="rate">Up to 5% cashback at Myer</span>
  </div>
  <p>Shop Myer today</p>
</body></html>`

func doc(t *testing.T) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return d
}

func TestTextNodes_SkipsScript(t *testing.T) {
	t.Parallel()

	var texts []string
	TextNodes(doc(t), func(n *html.Node) bool {
		texts = append(texts, strings.TrimSpace(n.Data))
		return true
	})
	for _, s := range texts {
		assert.NotContains(t, s, "var m")
	}
	assert.Contains(t, texts, "Myer")
}

func TestTextOwners(t *testing.T) {
	t.Parallel()

	owners := TextOwners(doc(t), "Myer", 3)
	require.Len(t, owners, 3)
	assert.Equal(t, "title", TagName(owners[0]))
	assert.Equal(t, "h1", TagName(owners[1]))
	assert.Equal(t, "span", TagName(owners[2]))

	assert.Len(t, TextOwners(doc(t), "Myer", 1), 1)
	assert.Empty(t, TextOwners(doc(t), "", 3))
}

func TestExactTextOwner(t *testing.T) {
	t.Parallel()

	s := ExactTextOwner(doc(t), "Myer")
	require.NotNil(t, s)
	assert.Equal(t, "h1", TagName(s))

	s = ExactTextOwner(doc(t), "5% cashback")
	require.NotNil(t, s)
	assert.Equal(t, "span", TagName(s))

	assert.Nil(t, ExactTextOwner(doc(t), "Target"))
}

func TestSelector(t *testing.T) {
	t.Parallel()

	d := doc(t)
	assert.Equal(t, "#store-hero", Selector(d.Find("div").First()))
	assert.Equal(t, "h1.merchant-name", Selector(d.Find("h1")))
	assert.Equal(t, "p", Selector(d.Find("p")))
	assert.Equal(t, []string{"hero", "main"}, Classes(d.Find("div").First()))
}

func TestCompose(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "div#x.a.b", Compose("div", []string{"a", "b"}, "x"))
	assert.Equal(t, "div.a", Compose("div", []string{"a", "md:flex", ""}, ""))
}
