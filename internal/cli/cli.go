// Package cli provides the command-line interface for scripscrapo.
package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vslabs/scripscrapo/internal/config"
	"github.com/vslabs/scripscrapo/internal/logging"
	"github.com/vslabs/scripscrapo/internal/scrape"
)

// NewRootCmd builds the root command with the search and download
// subcommands attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "scripscrapo",
		Short:        "Search securities and download historical prices from NSE, BSE, Yahoo Finance and Investing.com",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("source", "nse", "data source: nse, bse, yahoo or investing")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(newSearchCmd())
	root.AddCommand(newDownloadCmd())
	return root
}

// buildSource resolves the --source flag into a wired client plus the
// config and logger it was built from.
func buildSource(cmd *cobra.Command) (scrape.Source, *config.Config, zerolog.Logger, error) {
	cfg := config.DefaultConfig()
	cfg.LoadEnv()

	logCfg := logging.DefaultConfig()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	log := logging.New(logCfg)

	name, _ := cmd.Flags().GetString("source")
	kind := scrape.SourceKind(strings.ToLower(strings.TrimSpace(name)))
	src, ok := scrape.NewRegistry(cfg, log)[kind]
	if !ok {
		return nil, nil, log, fmt.Errorf("unknown source %q (expected one of nse, bse, yahoo, investing)", name)
	}
	return src, cfg, log, nil
}
