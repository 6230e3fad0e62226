package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cashback-intel/internal/model"
)

var testDecay = DecayConfig{HalfLifeDays: 30, Floor: 0.35}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "learned_patterns.json"), testDecay)
	require.NoError(t, err)
	return s
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	assert.Empty(t, s.All())
}

func TestOpen_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "learned_patterns.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, testDecay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patterns: parse")
}

func TestOpen_LegacyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "learned_patterns.json")
	legacy := `{"merchant_selectors": [{"tag": "h1", "class": ["store-name"], "id": "", "text_pattern": "Myer"}], "cashback_selectors": [], "url_patterns": {}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(path, testDecay)
	require.NoError(t, err)
	require.Len(t, s.All(), 1)
	assert.Equal(t, []string{"store-name"}, s.All()[0].Classes)
}

func TestStore_AddDedupsAndPersists(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	p := model.LearnedPattern{Tag: "h1", Classes: []string{"a", "b"}, SiteType: model.SiteShopBack, Confidence: 0.9, LearnedAt: time.Now()}
	dup := p
	dup.Classes = []string{"b", "a"}

	added, err := s.Add(ctx, p, dup)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.Add(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	reopened, err := Open(s.Path(), testDecay)
	require.NoError(t, err)
	assert.Len(t, reopened.All(), 1)
}

func TestStore_SuggestFiltersAndOrders(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := openTemp(t)
	s.now = func() time.Time { return now }

	fresh := model.LearnedPattern{Tag: "h1", SiteType: model.SiteShopBack, Confidence: 0.8, LearnedAt: now}
	older := model.LearnedPattern{Tag: "h2", SiteType: model.SiteShopBack, Confidence: 0.9, LearnedAt: now.Add(-20 * 24 * time.Hour)}
	stale := model.LearnedPattern{Tag: "h3", SiteType: model.SiteShopBack, Confidence: 0.9, LearnedAt: now.Add(-90 * 24 * time.Hour)}
	other := model.LearnedPattern{Tag: "h4", SiteType: model.SiteCashRewards, Confidence: 0.9, LearnedAt: now}
	global := model.LearnedPattern{Tag: "span", Confidence: 0.7, LearnedAt: now}

	_, err := s.Add(context.Background(), fresh, older, stale, other, global)
	require.NoError(t, err)

	got := s.Suggest(model.SiteShopBack)
	require.Len(t, got, 3)
	assert.Equal(t, "h1", got[0].Tag)
	assert.Equal(t, "span", got[1].Tag)
	assert.Equal(t, "h2", got[2].Tag)
}

func TestStore_MarkSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := openTemp(t)
	s.now = func() time.Time { return now }

	p := model.LearnedPattern{Tag: "h1", SiteType: model.SiteShopBack, Confidence: 0.8, LearnedAt: now.Add(-10 * 24 * time.Hour)}
	_, err := s.Add(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, s.MarkSuccess(context.Background(), p))
	got := s.All()[0]
	assert.Equal(t, 1, got.Successes)
	assert.Equal(t, now, got.LastSuccessAt)
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := openTemp(t)
	s.now = func() time.Time { return now }

	_, err := s.Add(context.Background(),
		model.LearnedPattern{Tag: "h1", Confidence: 0.8, LearnedAt: now},
		model.LearnedPattern{Tag: "h2", Confidence: 0.8, LearnedAt: now.Add(-120 * 24 * time.Hour)},
	)
	require.NoError(t, err)

	removed, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Len(t, s.All(), 1)
	assert.Equal(t, "h1", s.All()[0].Tag)
}

func TestEffectiveConfidence(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p := model.LearnedPattern{Confidence: 0.8, LearnedAt: now.Add(-30 * 24 * time.Hour)}
	assert.InDelta(t, 0.4, EffectiveConfidence(p, now, testDecay), 0.001)

	p.LastSuccessAt = now
	assert.InDelta(t, 0.8, EffectiveConfidence(p, now, testDecay), 0.001)

	assert.Equal(t, 0.9, EffectiveConfidence(model.LearnedPattern{Confidence: 0.9}, now, testDecay))
	assert.Equal(t, 0.0, EffectiveConfidence(model.LearnedPattern{Confidence: -1}, now, testDecay))
}
