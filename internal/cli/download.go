package cli

import (
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/vslabs/scripscrapo/internal/export"
	"github.com/vslabs/scripscrapo/internal/panel"
	"github.com/vslabs/scripscrapo/internal/scrape"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical prices for selected securities into an xlsx workbook",
		RunE:  runDownload,
	}
	cmd.Flags().String("query", "", "search term; matching securities are offered for selection")
	cmd.Flags().StringSlice("id", nil, "instrument ids to fetch directly, skipping search")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().String("out", "prices.xlsx", "output workbook path")
	return cmd
}

func runDownload(cmd *cobra.Command, _ []string) error {
	src, cfg, log, err := buildSource(cmd)
	if err != nil {
		return err
	}
	start, end, err := dateRange(cmd)
	if err != nil {
		return err
	}

	instruments, err := pickInstruments(cmd, src)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Nothing selected."))
		return nil
	}

	dispatcher := &scrape.Dispatcher{Workers: cfg.Workers, Log: log}
	results := dispatcher.DispatchAll(cmd.Context(), src, instruments, start, end)
	pnl, failures := panel.Reconcile(results)

	out, _ := cmd.Flags().GetString("out")
	if !pnl.Empty() {
		if err := export.WriteWorkbook(out, results, pnl); err != nil {
			return fmt.Errorf("writing workbook: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), RenderPanelSummary(pnl, out))
	if len(failures) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), RenderFailures(failures))
	}
	return nil
}

func dateRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	end := time.Now()
	start := end.AddDate(-1, 0, 0)
	var err error
	if fromStr != "" {
		if start, err = time.Parse("2006-01-02", fromStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q", fromStr)
		}
	}
	if toStr != "" {
		if end, err = time.Parse("2006-01-02", toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q", toStr)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

// pickInstruments resolves the instrument list either from explicit ids
// or by running a search and letting the user multi-select from the hits.
func pickInstruments(cmd *cobra.Command, src scrape.Source) ([]scrape.Instrument, error) {
	ids, _ := cmd.Flags().GetStringSlice("id")
	if len(ids) > 0 {
		instruments := make([]scrape.Instrument, 0, len(ids))
		for _, id := range ids {
			instruments = append(instruments, scrape.Instrument{ID: id, Symbol: id})
		}
		return instruments, nil
	}

	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return nil, fmt.Errorf("either --query or --id is required")
	}
	hits, err := src.Search(cmd.Context(), query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	options := make([]string, len(hits))
	for i, inst := range hits {
		options[i] = fmt.Sprintf("%s  [%s · %s · %s]", inst.Description, inst.Label(), inst.Exchange, inst.Type)
	}
	var picked []int
	prompt := &survey.MultiSelect{
		Message:  "Select securities to download:",
		Options:  options,
		PageSize: 12,
	}
	if err := survey.AskOne(prompt, &picked); err != nil {
		return nil, err
	}

	instruments := make([]scrape.Instrument, 0, len(picked))
	for _, i := range picked {
		instruments = append(instruments, hits[i])
	}
	return instruments, nil
}
