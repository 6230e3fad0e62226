package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cashback-intel",
	Short: "Cashback competitor offer intelligence",
	Long: `Discovers merchant pages on cashback sites (ShopBack, CashRewards and any
site added through sites_file), extracts each merchant's offer with an
inference-first strategy chain, and reports results as CSV, JSON, Excel,
Notion pages and an e-mail summary.

Configuration is read from ./config.yaml and CASHBACK_* environment
variables; the flags below override both.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c
		applyGlobalFlags(cmd, cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
}

// applyGlobalFlags overlays explicitly set persistent flags onto c.
func applyGlobalFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("log-level") {
		c.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		c.Log.Format, _ = f.GetString("log-format")
	}
	if f.Changed("sites-file") {
		c.SitesFile, _ = f.GetString("sites-file")
	}
	if f.Changed("store") {
		c.Store.Driver, _ = f.GetString("store")
	}
	if f.Changed("database-url") {
		c.Store.DatabaseURL, _ = f.GetString("database-url")
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or console")
	pf.String("sites-file", "", "YAML file adding or overriding catalogued sites")
	pf.String("store", "", "run store driver: sqlite or postgres")
	pf.String("database-url", "", "SQLite path or Postgres connection string")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
