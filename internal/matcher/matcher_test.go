package matcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "big w", Normalize("  BIG   W "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
}

func TestMatch_Basic(t *testing.T) {
	t.Parallel()

	got := Match([]string{"Woolworths"}, []string{"woolworths group"}, 0.6)
	require.NotNil(t, got["Woolworths"])
	assert.Equal(t, "woolworths group", *got["Woolworths"])
}

func TestMatch_ReturnsOriginalCandidate(t *testing.T) {
	t.Parallel()

	trends := []string{"Woolworths", "Kmart", "Chemist Warehouse", "Big W", "Zzzyx"}
	cashback := []string{"Woolworths Group", "Kmart Australia", "Amazon AU", "Chemist Warehouse", "BIG W"}

	got := Match(trends, cashback, 0.7)
	require.Len(t, got, 5)
	assert.Equal(t, "Woolworths Group", *got["Woolworths"])
	assert.Equal(t, "Kmart Australia", *got["Kmart"])
	assert.Equal(t, "Chemist Warehouse", *got["Chemist Warehouse"])
	assert.Equal(t, "BIG W", *got["Big W"])
	assert.Nil(t, got["Zzzyx"])
}

func TestMatch_EmptyCandidates(t *testing.T) {
	t.Parallel()

	got := Match([]string{"Myer"}, nil, 0.5)
	assert.Contains(t, got, "Myer")
	assert.Nil(t, got["Myer"])
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "david jones", Slug("https://www.shopback.com.au/store/david-jones"))
	assert.Equal(t, "myer", Slug("https://www.shopback.com.au/store/myer/"))
	assert.Equal(t, "", Slug("https://www.shopback.com.au/"))
}

func TestPrioritize(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://x.com/store/apple",
		"https://x.com/store/kmart",
		"https://x.com/store/david-jones",
		"https://x.com/store/ebay",
	}
	got := Prioritize(urls, []string{"David Jones", "Kmart"}, 0.8)
	assert.Equal(t, []string{
		"https://x.com/store/david-jones",
		"https://x.com/store/kmart",
		"https://x.com/store/apple",
		"https://x.com/store/ebay",
	}, got)
}

func TestPrioritize_NoMatchFallsBack(t *testing.T) {
	t.Parallel()

	urls := []string{"https://x.com/store/apple", "https://x.com/store/ebay"}
	assert.Equal(t, urls, Prioritize(urls, []string{"Qwertyuiop"}, 0.95))
	assert.Equal(t, urls, Prioritize(urls, nil, 0.7))
}

func TestReadPriority(t *testing.T) {
	t.Parallel()

	in := "Retailer,Interest\nWoolworths,100\n\nKmart,80\n woolworths ,12\nBig W\n"
	got, err := ReadPriority(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Woolworths", "Kmart", "Big W"}, got)
}

func TestLoadPriority(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trends.csv")
	require.NoError(t, os.WriteFile(path, []byte("Myer\nTarget\n"), 0o644))

	got, err := LoadPriority(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Myer", "Target"}, got)

	_, err = LoadPriority(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
