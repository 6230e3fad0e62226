package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cashback-intel/internal/model"
)

const learnPage = `<html><body>
<h1 class="merchant-title">David Jones</h1>
<div id="crumbs"><a>Stores</a> &gt; <span>David Jones</span></div>
<p class="blurb">Shop David Jones online.</p>
<footer>David Jones Pty Ltd</footer>
</body></html>`

func newContext(t *testing.T) *model.ExtractionContext {
	t.Helper()
	ec, err := model.NewExtractionContext("https://www.shopback.com.au/store/david-jones", learnPage)
	require.NoError(t, err)
	return ec
}

func TestLearner_LearnsUpToThreeOwners(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	l := NewLearner(s, 0.7)

	ok, err := l.Observe(context.Background(), newContext(t), model.NewResult("David Jones", "4%", 0.9, model.MethodInference))
	require.NoError(t, err)
	assert.True(t, ok)

	got := s.All()
	require.Len(t, got, 3)
	assert.Equal(t, "h1", got[0].Tag)
	assert.Equal(t, []string{"merchant-title"}, got[0].Classes)
	assert.Equal(t, "span", got[1].Tag)
	assert.Equal(t, "p", got[2].Tag)
	for _, p := range got {
		assert.Equal(t, model.SiteShopBack, p.SiteType)
		assert.Equal(t, "David Jones", p.TextPattern)
	}

	// Second observation of the same page adds nothing.
	ok, err = l.Observe(context.Background(), newContext(t), model.NewResult("David Jones", "4%", 0.9, model.MethodInference))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLearner_IgnoresLowConfidence(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ok, err := NewLearner(s, 0.7).Observe(context.Background(), newContext(t), model.NewResult("David Jones", "4%", 0.69, model.MethodAdaptiveSelector))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.All())
}

func TestLearner_ThresholdNeverBelowDefault(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ok, err := NewLearner(s, 0.5).Observe(context.Background(), newContext(t), model.NewResult("David Jones", "4%", 0.6, model.MethodAdaptiveSelector))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.All())
}

func TestLearner_IgnoresUnknownMerchant(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ok, err := NewLearner(s, 0.7).Observe(context.Background(), newContext(t), model.NewResult(model.UnknownMerchant, "4%", 0.95, model.MethodInference))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.All())
}
