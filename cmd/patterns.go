package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain learned extraction patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns with their decayed confidence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		siteType, _ := cmd.Flags().GetString("site-type")

		st, err := openPatterns()
		if err != nil {
			return err
		}

		var ps []model.LearnedPattern
		for _, p := range st.All() {
			if siteType == "" || strings.EqualFold(p.SiteType, siteType) {
				ps = append(ps, p)
			}
		}
		if len(ps) == 0 {
			fmt.Fprintln(os.Stderr, "No patterns learned yet.")
			return nil
		}
		formatPatterns(os.Stdout, ps, time.Now(), decayConfig())
		return nil
	},
}

var patternsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove patterns whose decayed confidence fell below the floor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openPatterns()
		if err != nil {
			return err
		}
		n, err := st.Prune(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "patterns prune")
		}
		fmt.Fprintf(os.Stdout, "Pruned %d stale pattern(s) from %s\n", n, st.Path())
		return nil
	},
}

// formatPatterns writes patterns sorted by effective confidence to w.
func formatPatterns(out io.Writer, ps []model.LearnedPattern, now time.Time, decay patterns.DecayConfig) {
	sorted := append([]model.LearnedPattern(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return patterns.EffectiveConfidence(sorted[i], now, decay) > patterns.EffectiveConfidence(sorted[j], now, decay)
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SITE\tSELECTOR\tCONF\tEFFECTIVE\tSUCCESSES\tLAST SEEN\tSTALE")
	_, _ = fmt.Fprintln(w, "----\t--------\t----\t---------\t---------\t---------\t-----")
	for _, p := range sorted {
		stale := ""
		if patterns.Stale(p, now, decay) {
			stale = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%d\t%s\t%s\n",
			p.SiteType,
			p.Selector(),
			p.Confidence,
			patterns.EffectiveConfidence(p, now, decay),
			p.Successes,
			p.LastSeen().Format("2006-01-02"),
			stale,
		)
	}
	_ = w.Flush()
}

func init() {
	patternsListCmd.Flags().String("site-type", "", "filter by site type (shopback, cashrewards, rakuten, generic)")
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsPruneCmd)
	rootCmd.AddCommand(patternsCmd)
}
