package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/cashback-intel/internal/model"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the catalogued cashback sites",
	RunE: func(_ *cobra.Command, _ []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		formatSites(os.Stdout, catalog.All())
		return nil
	},
}

func formatSites(out io.Writer, targets []model.CrawlTarget) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SITE\tENTRY POINT\tDETAIL FILTER")
	_, _ = fmt.Fprintln(w, "----\t-----------\t-------------")
	for _, t := range targets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.Site, t.EntryPoint, t.DetailFilter)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}
