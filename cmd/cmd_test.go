package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cashback-intel/internal/config"
	"github.com/sells-group/cashback-intel/internal/crawl"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/output"
	"github.com/sells-group/cashback-intel/internal/patterns"
	"github.com/sells-group/cashback-intel/internal/sites"
)

func TestResolveTargets_AllWhenEmpty(t *testing.T) {
	catalog := sites.Defaults()

	targets, err := resolveTargets(catalog, nil)
	require.NoError(t, err)
	assert.Len(t, targets, len(catalog.All()))
}

func TestResolveTargets_Dedupes(t *testing.T) {
	targets, err := resolveTargets(sites.Defaults(), []string{"shopback", "ShopBack", "cashrewards"})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, model.SiteShopBack, targets[0].Site)
	assert.Equal(t, model.SiteCashRewards, targets[1].Site)
}

func TestResolveTargets_Unknown(t *testing.T) {
	_, err := resolveTargets(sites.Defaults(), []string{"nosuchsite"})
	assert.Error(t, err)
}

func TestFormatCrawlReports(t *testing.T) {
	stats := model.NewRunStats()
	stats.Processed = 12
	stats.TokensUsed = 3400
	stats.Cost = 0.0051
	stats.StopReason = model.StopTargetReached
	stats.Fail(model.FailNotFound)

	reports := []siteReport{
		{
			RunID: "abc12345-6789",
			Report: &crawl.Report{
				Target:  model.CrawlTarget{Site: "shopback"},
				Results: []*model.ExtractionResult{model.NewResult("Myer", "5%", 0.9, model.MethodInference)},
				Stats:   stats,
			},
			Files: &output.Files{CSV: "out/shopback.csv", Summary: "out/shopback_summary.json"},
		},
		{RunID: "skipped", Err: errors.New("boom")},
	}

	var buf bytes.Buffer
	formatCrawlReports(&buf, reports)

	out := buf.String()
	assert.Contains(t, out, "shopback")
	assert.Contains(t, out, "abc12345")
	assert.Contains(t, out, "$0.0051")
	assert.Contains(t, out, "target_reached")
	assert.Contains(t, out, "wrote out/shopback.csv")
	assert.Contains(t, out, "wrote out/shopback_summary.json")
	assert.NotContains(t, out, "skipped")
}

func TestNotifyReports(t *testing.T) {
	reports := []siteReport{
		{
			Report: &crawl.Report{Target: model.CrawlTarget{Site: "shopback"}, Stats: model.NewRunStats()},
			Files:  &output.Files{CSV: "a.csv", JSON: "a.json"},
		},
		{Err: errors.New("no report")},
	}

	got := notifyReports(reports, model.LevelBasic, "openai")
	require.Len(t, got, 1)
	assert.Equal(t, "shopback", got[0].Site)
	assert.Equal(t, model.LevelBasic, got[0].Level)
	assert.Equal(t, []string{"a.csv", "a.json"}, got[0].Files)
}

func TestFormatValidation(t *testing.T) {
	var buf bytes.Buffer
	formatValidation(&buf,
		model.CrawlTarget{Site: "shopback", EntryPoint: "https://www.shopback.com.au/sitemap.xml"},
		validationCounts{Discovered: 10, Rejected: 3, Probed: 7, Valid: 2},
		[]string{"https://www.shopback.com.au/store/myer", "https://www.shopback.com.au/store/kmart"},
	)

	out := buf.String()
	assert.Contains(t, out, "shopback (https://www.shopback.com.au/sitemap.xml)")
	assert.Contains(t, out, "Rejected by admission:")
	assert.Contains(t, out, "/store/kmart")
}

func TestFormatMatches(t *testing.T) {
	urls := []string{
		"https://www.shopback.com.au/store/myer",
		"https://www.shopback.com.au/store/david-jones",
	}

	var buf bytes.Buffer
	formatMatches(&buf, []string{"David Jones", "Zzyzx Quux"}, urls, 0.85)

	out := buf.String()
	assert.Contains(t, out, "https://www.shopback.com.au/store/david-jones")
	assert.Contains(t, out, "Zzyzx Quux")
	assert.Contains(t, out, "Matched 1 of 2 priority merchants")
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n  b  \n"), 0o644))

	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	_, err = readLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFormatPatterns_SortsByEffectiveConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ps := []model.LearnedPattern{
		{Tag: "h1", Classes: []string{"old"}, SiteType: "shopback", Confidence: 0.95, LearnedAt: now.AddDate(0, 0, -120)},
		{Tag: "h1", Classes: []string{"fresh"}, SiteType: "shopback", Confidence: 0.8, LearnedAt: now},
	}

	var buf bytes.Buffer
	formatPatterns(&buf, ps, now, patterns.DecayConfig{HalfLifeDays: 30, Floor: 0.3})

	out := buf.String()
	fresh := bytes.Index(buf.Bytes(), []byte("h1.fresh"))
	old := bytes.Index(buf.Bytes(), []byte("h1.old"))
	require.NotEqual(t, -1, fresh)
	require.NotEqual(t, -1, old)
	assert.Less(t, fresh, old)
	assert.Contains(t, out, "yes")
}

func TestFormatSites(t *testing.T) {
	var buf bytes.Buffer
	formatSites(&buf, sites.Defaults().All())
	assert.Contains(t, buf.String(), "shopback")
	assert.Contains(t, buf.String(), "/store/")
}

func TestApplyGlobalFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	pf := cmd.PersistentFlags()
	pf.String("log-level", "", "")
	pf.String("log-format", "", "")
	pf.String("sites-file", "", "")
	pf.String("store", "", "")
	pf.String("database-url", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "debug", "--store", "postgres", "--database-url", "postgres://localhost/cb"}))

	c := &config.Config{}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Store.Driver = "sqlite"
	applyGlobalFlags(cmd, c)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "postgres://localhost/cb", c.Store.DatabaseURL)
	assert.Empty(t, c.SitesFile)
}
