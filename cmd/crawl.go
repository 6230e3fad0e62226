package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/budget"
	"github.com/sells-group/cashback-intel/internal/cost"
	"github.com/sells-group/cashback-intel/internal/crawl"
	"github.com/sells-group/cashback-intel/internal/extract"
	"github.com/sells-group/cashback-intel/internal/inference"
	"github.com/sells-group/cashback-intel/internal/matcher"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/notify"
	"github.com/sells-group/cashback-intel/internal/output"
	"github.com/sells-group/cashback-intel/internal/patterns"
	"github.com/sells-group/cashback-intel/internal/resilience"
	"github.com/sells-group/cashback-intel/internal/store"
	"github.com/sells-group/cashback-intel/pkg/notion"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl cashback sites and extract merchant offers",
	Example: `  cashback-intel crawl --site shopback --level standard --target 20
  cashback-intel crawl --site shopback --site cashrewards --ceiling 50000 --format csv --format xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyCrawlFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}
		publish, _ := cmd.Flags().GetBool("notion")
		if publish {
			if err := cfg.Validate("notion"); err != nil {
				return err
			}
		}

		names, _ := cmd.Flags().GetStringSlice("site")
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		targets, err := resolveTargets(catalog, names)
		if err != nil {
			return err
		}

		r, err := newCrawlRunner(ctx, publish)
		if err != nil {
			return err
		}
		defer r.Close()

		reports, err := r.RunAll(ctx, targets)
		formatCrawlReports(os.Stdout, reports)
		if err != nil {
			return err
		}
		return r.notifier.Send(notifyReports(reports, r.level, r.backend.Name()))
	},
}

// applyCrawlFlags overlays explicitly set flags onto the loaded config.
func applyCrawlFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("level") {
		cfg.Extract.Level, _ = f.GetString("level")
	}
	if f.Changed("backend") {
		cfg.Extract.Backend, _ = f.GetString("backend")
	}
	if f.Changed("target") {
		cfg.Budget.Target, _ = f.GetInt("target")
	}
	if f.Changed("ceiling") {
		cfg.Budget.Ceiling, _ = f.GetInt64("ceiling")
	}
	if f.Changed("priority-file") {
		cfg.Match.PriorityFile, _ = f.GetString("priority-file")
	}
	if f.Changed("delay") {
		d, _ := f.GetDuration("delay")
		cfg.Crawl.DelayMillis = int(d / time.Millisecond)
	}
	if f.Changed("format") {
		cfg.Output.Formats, _ = f.GetStringSlice("format")
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir, _ = f.GetString("output-dir")
	}
	if cfg.Budget.Ceiling < 0 {
		return eris.New("crawl: --ceiling must not be negative")
	}
	return nil
}

// siteReport pairs a crawl report with what was persisted for it.
type siteReport struct {
	RunID  string
	Report *crawl.Report
	Files  *output.Files
	Err    error
}

// crawlRunner holds the collaborators shared across sites of one invocation.
type crawlRunner struct {
	level      model.Level
	backend    inference.Backend
	calc       *cost.Calculator
	fetch      *fetchEnv
	store      store.Store
	patterns   *patterns.Store
	learner    *patterns.Learner
	contextual *extract.ContextAwareStrategy
	priority   []string
	writer     *output.Writer
	publisher  *output.Publisher
	notifier   *notify.Notifier
}

func newCrawlRunner(ctx context.Context, publish bool) (*crawlRunner, error) {
	level, err := model.ParseLevel(cfg.Extract.Level)
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(cost.DefaultRates())
	backend, err := inference.New(ctx, cfg.Extract.Backend, cfg, calc)
	if err != nil {
		return nil, err
	}
	guarded := inference.WithBreaker(backend, resilience.BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
	})

	pats, err := openPatterns()
	if err != nil {
		return nil, err
	}

	var priority []string
	if cfg.Match.PriorityFile != "" {
		if priority, err = matcher.LoadPriority(cfg.Match.PriorityFile); err != nil {
			return nil, err
		}
		zap.L().Info("crawl: loaded priority retailers", zap.Int("count", len(priority)))
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	r := &crawlRunner{
		level:      level,
		backend:    guarded,
		calc:       calc,
		fetch:      initFetch(),
		store:      st,
		patterns:   pats,
		learner:    patterns.NewLearner(pats, cfg.Extract.LearningThreshold),
		contextual: extract.NewContextAwareStrategy(),
		priority:   priority,
		writer:     output.NewWriter(cfg.Output.Dir, cfg.Output.Formats),
		notifier: notify.New(notify.Config{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.Username,
			Password: cfg.Notify.Password,
			From:     cfg.Notify.From,
			To:       cfg.Notify.To,
		}),
	}
	if publish {
		r.publisher = output.NewPublisher(notion.NewClient(cfg.Notion.Token), cfg.Notion.DatabaseID)
	}
	return r, nil
}

// Close releases the store and browser.
func (r *crawlRunner) Close() {
	r.fetch.Close()
	if r.store != nil {
		_ = r.store.Close()
	}
}

// RunAll crawls targets in order, splitting the token ceiling evenly. A fatal
// error on one site stops the remaining sites.
func (r *crawlRunner) RunAll(ctx context.Context, targets []model.CrawlTarget) ([]siteReport, error) {
	var ceiling *int64
	if cfg.Budget.Ceiling > 0 {
		c := cfg.Budget.Ceiling
		ceiling = &c
	}
	perSite := budget.SplitCeiling(ceiling, len(targets))

	reports := make([]siteReport, 0, len(targets))
	for _, t := range targets {
		sr := r.runSite(ctx, t, perSite)
		reports = append(reports, sr)
		if sr.Err != nil {
			return reports, sr.Err
		}
	}
	return reports, nil
}

func (r *crawlRunner) runSite(ctx context.Context, target model.CrawlTarget, ceiling *int64) siteReport {
	log := zap.L().With(zap.String("site", target.Site))

	run, err := r.store.CreateRun(ctx, target, r.level, r.backend.Name())
	if err != nil {
		return siteReport{Err: eris.Wrap(err, "crawl: create run")}
	}
	sr := siteReport{RunID: run.ID}

	ctrl := budget.New(cfg.Budget.Target, ceiling, r.calc.Estimate(r.level, r.backend.Name()))
	ctrl.LogPlan(r.level, r.backend.Name())

	chain := extract.NewChain(extract.ChainConfig{
		Level:             r.level,
		HighConfidence:    cfg.Extract.HighConfidence,
		LearningThreshold: cfg.Extract.LearningThreshold,
	}, r.learner,
		extract.NewInferenceStrategy(r.backend, r.level, cfg.Extract.MaxInputTokens, ctrl),
		extract.NewLearnedStrategy(r.patterns),
		extract.NewAdaptiveStrategy(),
		r.contextual,
	)

	engine := crawl.New(crawl.Deps{
		Discoverer: crawl.NewSitemapDiscoverer(r.fetch.Fetcher),
		Admission:  r.fetch.Admission,
		Validator:  r.fetch.Validator,
		Fetcher:    r.fetch.Fetcher,
		Classifier: r.fetch.Classifier,
		Chain:      chain,
		Budget:     ctrl,
		OnResult: func(ctx context.Context, res *model.ExtractionResult) error {
			_, err := r.store.SaveOffers(ctx, run.ID, target.Site, []*model.ExtractionResult{res})
			return err
		},
	}, crawl.Options{
		Delay:       time.Duration(cfg.Crawl.DelayMillis) * time.Millisecond,
		Priority:    r.priority,
		MatchCutoff: cfg.Match.Cutoff,
	})

	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusCrawling); err != nil {
		log.Warn("crawl: update run status", zap.Error(err))
	}

	report, runErr := engine.Run(ctx, target)
	sr.Report = report

	status := model.RunStatusComplete
	errMsg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		errMsg = runErr.Error()
	}
	// Record the outcome even if the crawl was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	var stats *model.RunStats
	if report != nil {
		stats = report.Stats
	}
	if err := r.store.FinishRun(finishCtx, run.ID, status, stats, errMsg); err != nil {
		log.Error("crawl: finish run", zap.Error(err))
	}

	if report != nil {
		files, err := r.writer.Write(target.Site, r.level, report.Results, report.Stats)
		if err != nil {
			log.Error("crawl: write output", zap.Error(err))
		}
		sr.Files = files

		if r.publisher != nil && len(report.Results) > 0 {
			if _, err := r.publisher.Publish(finishCtx, target.Site, report.Results); err != nil {
				log.Error("crawl: publish to notion", zap.Error(err))
			}
		}
	}

	if runErr != nil {
		sr.Err = eris.Wrapf(runErr, "crawl %s", target.Site)
	}
	return sr
}

func notifyReports(reports []siteReport, level model.Level, backend string) []notify.Report {
	out := make([]notify.Report, 0, len(reports))
	for _, sr := range reports {
		if sr.Report == nil {
			continue
		}
		nr := notify.Report{
			Site:    sr.Report.Target.Site,
			Level:   level,
			Backend: backend,
			Stats:   sr.Report.Stats,
			Results: sr.Report.Results,
		}
		if sr.Files != nil {
			for _, f := range []string{sr.Files.CSV, sr.Files.JSON, sr.Files.Excel, sr.Files.Summary} {
				if f != "" {
					nr.Files = append(nr.Files, f)
				}
			}
		}
		out = append(out, nr)
	}
	return out
}

// formatCrawlReports writes a per-site summary table to w.
func formatCrawlReports(out io.Writer, reports []siteReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SITE\tRUN\tRESULTS\tPROCESSED\tFAILED\tTOKENS\tCOST\tSTOP")
	_, _ = fmt.Fprintln(w, "----\t---\t-------\t---------\t------\t------\t----\t----")
	for _, sr := range reports {
		if sr.Report == nil {
			continue
		}
		s := sr.Report.Stats
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\t%s\n",
			sr.Report.Target.Site,
			truncateID(sr.RunID),
			len(sr.Report.Results),
			s.Processed,
			s.TotalFailures(),
			s.TokensUsed,
			s.Cost,
			s.StopReason,
		)
	}
	_ = w.Flush()

	for _, sr := range reports {
		if sr.Files == nil {
			continue
		}
		for _, f := range []string{sr.Files.CSV, sr.Files.JSON, sr.Files.Excel, sr.Files.Summary} {
			if f != "" {
				_, _ = fmt.Fprintf(out, "wrote %s\n", f)
			}
		}
	}
}

func init() {
	f := crawlCmd.Flags()
	f.StringSlice("site", nil, "site to crawl (repeatable; default all catalogued sites)")
	f.String("level", "", "intelligence level: basic, standard, comprehensive")
	f.String("backend", "", "inference backend: openai, anthropic, gemini")
	f.Int("target", 0, "stop after this many successful extractions per site")
	f.Int64("ceiling", 0, "total token ceiling across all sites (0 = unlimited)")
	f.String("priority-file", "", "CSV of retailer names to crawl first")
	f.Duration("delay", 0, "courtesy delay between page fetches")
	f.StringSlice("format", nil, "output formats: csv, json, xlsx")
	f.String("output-dir", "", "directory for result files")
	f.Bool("notion", false, "publish results to the configured Notion database")
	rootCmd.AddCommand(crawlCmd)
}
