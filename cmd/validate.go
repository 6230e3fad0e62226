package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cashback-intel/internal/crawl"
	"github.com/sells-group/cashback-intel/internal/matcher"
	"github.com/sells-group/cashback-intel/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Discover and validate merchant URLs without extracting",
	Long:  "Runs sitemap discovery, admission filtering and existence probes for each site, then prints the URLs a crawl would visit.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		names, _ := cmd.Flags().GetStringSlice("site")
		limit, _ := cmd.Flags().GetInt("limit")
		priorityFile, _ := cmd.Flags().GetString("priority-file")
		if priorityFile == "" {
			priorityFile = cfg.Match.PriorityFile
		}

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		targets, err := resolveTargets(catalog, names)
		if err != nil {
			return err
		}

		var priority []string
		if priorityFile != "" {
			if priority, err = matcher.LoadPriority(priorityFile); err != nil {
				return err
			}
		}

		env := initFetch()
		defer env.Close()
		disc := crawl.NewSitemapDiscoverer(env.Fetcher)

		for _, t := range targets {
			urls, err := disc.Discover(ctx, t)
			if err != nil {
				return eris.Wrapf(err, "validate %s", t.Site)
			}
			admitted, rejected := env.Admission.AdmitAll(urls)
			ordered := matcher.Prioritize(admitted, priority, cfg.Match.Cutoff)
			if limit > 0 && len(ordered) > limit {
				ordered = ordered[:limit]
			}
			valid, err := env.Validator.Validate(ctx, ordered)
			if err != nil {
				return eris.Wrapf(err, "validate %s", t.Site)
			}

			formatValidation(os.Stdout, t, validationCounts{
				Discovered: len(urls),
				Rejected:   rejected,
				Probed:     len(ordered),
				Valid:      len(valid),
			}, valid)
		}
		return nil
	},
}

type validationCounts struct {
	Discovered int
	Rejected   int
	Probed     int
	Valid      int
}

// formatValidation writes the counts and surviving URLs for one site to w.
func formatValidation(out io.Writer, t model.CrawlTarget, c validationCounts, valid []string) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", t.Site, t.EntryPoint)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "  Discovered:\t%d\n", c.Discovered)
	_, _ = fmt.Fprintf(w, "  Rejected by admission:\t%d\n", c.Rejected)
	_, _ = fmt.Fprintf(w, "  Probed:\t%d\n", c.Probed)
	_, _ = fmt.Fprintf(w, "  Valid:\t%d\n", c.Valid)
	_ = w.Flush()
	for _, u := range valid {
		_, _ = fmt.Fprintf(out, "  %s\n", u)
	}
}

func init() {
	validateCmd.Flags().StringSlice("site", nil, "site to validate (repeatable; default all)")
	validateCmd.Flags().Int("limit", 50, "max URLs to probe per site (0 = all)")
	validateCmd.Flags().String("priority-file", "", "CSV of retailer names to probe first")
	rootCmd.AddCommand(validateCmd)
}
