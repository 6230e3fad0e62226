package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect crawl run history",
	Long:  "Commands for listing, viewing, and summarizing crawl runs and their offers.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crawl runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		site, _ := cmd.Flags().GetString("site")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Site:   site,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs offers --

var runsOffersCmd = &cobra.Command{
	Use:   "offers <run-id>",
	Short: "List the offers extracted by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		merchant, _ := cmd.Flags().GetString("merchant")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		limit, _ := cmd.Flags().GetInt("limit")

		offers, err := st.ListOffers(ctx, store.OfferFilter{
			RunID:         args[0],
			Merchant:      merchant,
			MinConfidence: minConf,
			Limit:         limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs offers")
		}
		if len(offers) == 0 {
			fmt.Fprintln(os.Stderr, "No offers found.")
			return nil
		}
		formatOffers(os.Stdout, offers)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		site, _ := cmd.Flags().GetString("site")
		runs, err := st.ListRuns(ctx, store.RunFilter{Site: site, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, crawling, complete, failed)")
	runsListCmd.Flags().String("site", "", "filter by site")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsOffersCmd.Flags().String("merchant", "", "filter by merchant name substring")
	runsOffersCmd.Flags().Float64("min-confidence", 0, "minimum extraction confidence")
	runsOffersCmd.Flags().Int("limit", 100, "max number of offers to display")

	runsStatsCmd.Flags().String("site", "", "filter by site")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsOffersCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Other      int
	Offers     int
	Tokens     int64
	Cost       float64
	AvgDurSecs float64
	StopCounts map[model.StopReason]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), StopCounts: make(map[model.StopReason]int)}

	var totalDur time.Duration
	var durCount int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
		if r.Stats != nil {
			s.Offers += r.Stats.Succeeded
			s.Tokens += r.Stats.TokensUsed
			s.Cost += r.Stats.Cost
			if r.Stats.StopReason != "" {
				s.StopCounts[r.Stats.StopReason]++
			}
		}
	}
	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSITE\tLEVEL\tBACKEND\tSTATUS\tOFFERS\tSTOP\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-------\t------\t------\t----\t-------\t--------")
	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		offers, stop := "", ""
		if r.Stats != nil {
			offers = fmt.Sprint(r.Stats.Succeeded)
			stop = string(r.Stats.StopReason)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Target.Site,
			r.Level,
			r.Backend,
			r.Status,
			offers,
			stop,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatOffers writes a tabular list of offers to w.
func formatOffers(out io.Writer, offers []store.Offer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MERCHANT\tOFFER\tCONF\tMETHOD\tURL")
	_, _ = fmt.Fprintln(w, "--------\t-----\t----\t------\t---")
	for _, o := range offers {
		offer := o.Offer
		if len(offer) > 40 {
			offer = offer[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", o.Merchant, offer, o.Confidence, o.Method, o.URL)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Other:\t%d\n", s.Other)
	_, _ = fmt.Fprintf(w, "Offers:\t%d\n", s.Offers)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d\n", s.Tokens)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", s.Cost)
	for _, reason := range []model.StopReason{
		model.StopTargetReached, model.StopBudgetExceeded, model.StopQueueExhausted, model.StopCancelled, model.StopFatal,
	} {
		if n := s.StopCounts[reason]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", reason, n)
		}
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
