package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cashback-intel/internal/crawl"
	"github.com/sells-group/cashback-intel/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Fuzzy-match priority merchant names against store URLs",
	Long: `Pairs each name in the priority file with the most similar store URL slug.
URLs come from --urls (one per line) or, when absent, from the site's sitemap.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		priorityFile, _ := cmd.Flags().GetString("priority-file")
		if priorityFile == "" {
			priorityFile = cfg.Match.PriorityFile
		}
		if priorityFile == "" {
			return eris.New("match: --priority-file is required")
		}
		urlsFile, _ := cmd.Flags().GetString("urls")
		site, _ := cmd.Flags().GetString("site")
		cutoff, _ := cmd.Flags().GetFloat64("cutoff")
		if cutoff <= 0 {
			cutoff = cfg.Match.Cutoff
		}

		priority, err := matcher.LoadPriority(priorityFile)
		if err != nil {
			return err
		}

		var urls []string
		if urlsFile != "" {
			if urls, err = readLines(urlsFile); err != nil {
				return err
			}
		} else {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			t, err := catalog.Get(site)
			if err != nil {
				return err
			}
			env := initFetch()
			defer env.Close()
			if urls, err = crawl.NewSitemapDiscoverer(env.Fetcher).Discover(ctx, t); err != nil {
				return eris.Wrapf(err, "match: discover %s", t.Site)
			}
		}

		formatMatches(os.Stdout, priority, urls, cutoff)
		return nil
	},
}

// formatMatches prints one row per priority name with its matched URL, or a
// dash when nothing cleared the cutoff.
func formatMatches(out io.Writer, priority, urls []string, cutoff float64) {
	slugs := make([]string, len(urls))
	bySlug := make(map[string]string, len(urls))
	for i, u := range urls {
		slugs[i] = matcher.Slug(u)
		if _, ok := bySlug[slugs[i]]; !ok {
			bySlug[slugs[i]] = u
		}
	}
	matches := matcher.Match(priority, slugs, cutoff)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MERCHANT\tSCORE\tURL")
	_, _ = fmt.Fprintln(w, "--------\t-----\t---")
	matched := 0
	for _, name := range priority {
		m := matches[name]
		if m == nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\n", name)
			continue
		}
		matched++
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\n", name, matcher.Similarity(name, *m), bySlug[*m])
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nMatched %d of %d priority merchants\n", matched, len(priority))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, eris.Wrapf(sc.Err(), "read %s", path)
}

func init() {
	matchCmd.Flags().String("priority-file", "", "file of priority merchant names, one per line")
	matchCmd.Flags().String("urls", "", "file of store URLs, one per line")
	matchCmd.Flags().String("site", "shopback", "catalogued site whose sitemap supplies URLs when --urls is absent")
	matchCmd.Flags().Float64("cutoff", 0, "similarity cutoff (default from config)")
	rootCmd.AddCommand(matchCmd)
}
