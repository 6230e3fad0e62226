package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cashback-intel/internal/model"
)

const storePage = `<html><head><title>Myer Cashback | ShopBack</title>
<script>var x = "cashback 99%";</script></head>
<body>
<nav>Home Shop Browse</nav>
<h1>Myer</h1>
<div class="cashback-rate">Up to 6% Cashback</div>
<p>Earn 6% cashback on fashion. Terms apply.</p>
<p>Get $10 bonus when you spend $50.</p>
<footer>Copyright 5% of nothing</footer>
</body></html>`

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("one"))
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("w ", 10)))
}

func TestSalientText(t *testing.T) {
	t.Parallel()

	content, tokens := SalientText(storePage, 3000)
	assert.Contains(t, content, "TITLE: Myer Cashback | ShopBack")
	assert.Contains(t, content, "HEADER: Myer")
	assert.Contains(t, content, "Up to 6% Cashback")
	assert.Contains(t, content, "AMOUNT:")
	assert.NotContains(t, content, "99%")
	assert.NotContains(t, content, "Copyright")
	assert.NotContains(t, content, "Browse")
	assert.Positive(t, tokens)
}

func TestSalientText_Truncates(t *testing.T) {
	t.Parallel()

	header := "<h2>" + strings.Repeat("cashback ", 20) + "</h2>"
	body := "<html><body>" + strings.Repeat(header, 5) + "</body></html>"
	content, tokens := SalientText(body, 20)
	assert.Len(t, strings.Fields(content), 15)
	assert.LessOrEqual(t, tokens, 20)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	for _, level := range model.AllLevels() {
		p := BuildPrompt(level, "https://example.com/store/myer", "HEADER: Myer")
		assert.Contains(t, p, "https://example.com/store/myer")
		assert.Contains(t, p, "HEADER: Myer")
		assert.Contains(t, p, "Pokitpal")
		assert.NotEmpty(t, SystemMessage(level))
	}
	assert.Contains(t, BuildPrompt(model.LevelComprehensive, "u", "c"), "data_quality")
	assert.Contains(t, BuildPrompt(model.LevelBasic, "u", "c"), "competitive_threat")
}
